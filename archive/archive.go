package archive

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/internal/logctx"
	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/dolthub/fslock"
	"github.com/dustin/go-humanize"
	"github.com/google/btree"
	lru "github.com/hashicorp/golang-lru/v2"
)

var log = logctx.For("archive")

const chunkCacheSize = 4096

// lockRetries/lockDelay bound how long Commit waits for the single-writer
// advisory lock before failing fast with digstoreerr.Locked rather than
// blocking indefinitely or risking a corrupting concurrent write.
const lockRetries = 3
const lockDelay = 50 * time.Millisecond

// Stats carries cache and I/O diagnostics for an open archive.
type Stats struct {
	CacheHits     uint64
	CacheMisses   uint64
	LayersTouched uint64
}

// Archive is a single-file container of layers, keyed by layer hash, with
// an in-memory ordered index (google/btree) mirroring the on-disk index
// and an LRU cache of individually-fetched chunk bytes.
type Archive struct {
	mu      sync.RWMutex
	path    string
	file    *os.File
	lock    *fslock.Lock
	header  Header
	entries []IndexEntry
	byHash  *btree.BTreeG[IndexEntry]

	chunkCache *lru.Cache[types.Hash, []byte]
	stats      Stats
}

func lessByHash(a, b IndexEntry) bool { return a.LayerHash.Less(b.LayerHash) }

// Open reads the archive header and layer index at path, creating an empty
// container (header + zero-length index, no layers) if the file does not
// exist yet. The caller (store.Init) is responsible for writing Layer 0
// via OverwriteLayerZero immediately after a freshly-created Open.
func Open(path string) (*Archive, error) {
	cache, err := lru.New[types.Hash, []byte](chunkCacheSize)
	if err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.IoError, err, "constructing chunk cache")
	}

	a := &Archive{
		path:       path,
		lock:       fslock.New(path + ".lock"),
		byHash:     btree.NewG(32, lessByHash),
		chunkCache: cache,
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.IoError, err, "opening archive file").WithPath(path)
	}
	a.file = f

	info, err := f.Stat()
	if err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.IoError, err, "statting archive file").WithPath(path)
	}

	if info.Size() == 0 {
		a.header = Header{FormatVersion: FormatVersion, LayerCount: 0, IndexOffset: HeaderSize, IndexSize: 0}
		if err := a.writeHeader(); err != nil {
			return nil, err
		}
		log.WithField("path", path).Info("initialized new archive")
		return a, nil
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.IoError, err, "seeking to archive header")
	}
	h, err := decodeHeader(f)
	if err != nil {
		return nil, err
	}
	a.header = h

	if _, err := f.Seek(int64(h.IndexOffset), io.SeekStart); err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.IoError, err, "seeking to archive index")
	}
	entries, err := decodeIndex(f, h.LayerCount)
	if err != nil {
		return nil, err
	}
	a.entries = entries
	for _, e := range entries {
		a.byHash.ReplaceOrInsert(e)
	}

	log.WithFields(map[string]interface{}{
		"path":   path,
		"layers": h.LayerCount,
		"size":   humanize.Bytes(uint64(info.Size())),
	}).Info("opened archive")
	return a, nil
}

func (a *Archive) writeHeader() error {
	if _, err := a.file.WriteAt(a.header.encode(), 0); err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "writing archive header")
	}
	return nil
}

// IsEmpty reports whether this archive has no layers at all, meaning Open
// just created it fresh and Layer 0 still needs to be written.
func (a *Archive) IsEmpty() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries) == 0
}

// HasLayer reports whether hash is present in the archive's index.
func (a *Archive) HasLayer(hash types.Hash) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.byHash.Get(IndexEntry{LayerHash: hash})
	return ok
}

// GetLayerData returns the raw, unparsed bytes for the layer at hash.
func (a *Archive) GetLayerData(hash types.Hash) ([]byte, error) {
	a.mu.RLock()
	entry, ok := a.byHash.Get(IndexEntry{LayerHash: hash})
	a.mu.RUnlock()
	if !ok {
		return nil, digstoreerr.New(digstoreerr.LayerNotFound, "layer not present in archive").WithHash(hash.ToHex())
	}

	buf := make([]byte, entry.DataSize)
	if _, err := a.file.ReadAt(buf, int64(entry.DataOffset)); err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.IoError, err, "reading layer bytes").WithHash(hash.ToHex())
	}

	a.mu.Lock()
	a.stats.LayersTouched++
	a.mu.Unlock()
	return buf, nil
}

// GetCachedChunk returns data for chunkHash from the LRU cache, calling
// load to populate it on a miss.
func (a *Archive) GetCachedChunk(chunkHash types.Hash, load func() ([]byte, error)) ([]byte, error) {
	if data, ok := a.chunkCache.Get(chunkHash); ok {
		a.mu.Lock()
		a.stats.CacheHits++
		a.mu.Unlock()
		return data, nil
	}
	data, err := load()
	if err != nil {
		return nil, err
	}
	a.chunkCache.Add(chunkHash, data)
	a.mu.Lock()
	a.stats.CacheMisses++
	a.mu.Unlock()
	return data, nil
}

// Stats returns a snapshot of cache/read diagnostics.
func (a *Archive) Stats() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.stats
}

// ListLayers returns every index entry currently known to this archive.
func (a *Archive) ListLayers() []IndexEntry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]IndexEntry, len(a.entries))
	copy(out, a.entries)
	return out
}

// withWriteLock acquires the archive's single-writer advisory lock with a
// bounded number of constant-backoff retries, failing fast with
// digstoreerr.Locked rather than blocking indefinitely.
func (a *Archive) withWriteLock(fn func() error) error {
	b := backoff.WithMaxRetries(backoff.NewConstantBackOff(lockDelay), lockRetries)
	err := backoff.Retry(func() error {
		return a.lock.LockWithTimeout(lockDelay)
	}, b)
	if err != nil {
		return digstoreerr.Wrap(digstoreerr.Locked, err, "archive is locked by another writer").WithPath(a.path)
	}
	defer a.lock.Unlock()
	return fn()
}

// AppendLayer writes data for a new layer, then the updated index, then
// flushes, then swaps the header in to point at the new index — in that
// order, so a crash between layer-write and header-swap leaves the
// previous, still-valid archive state on disk.
func (a *Archive) AppendLayer(hash types.Hash, data []byte) (IndexEntry, error) {
	var entry IndexEntry
	err := a.withWriteLock(func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.appendLayerLocked(hash, data, false, &entry)
	})
	return entry, err
}

// OverwriteLayerZero appends a new version of Layer 0 (at hash zero) and
// makes it the index's zero-hash entry; the previous Layer 0 bytes are
// left as dead space in the append-only file, matching the container's
// single-writer, append-only design.
func (a *Archive) OverwriteLayerZero(data []byte) error {
	var entry IndexEntry
	return a.withWriteLock(func() error {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.appendLayerLocked(types.Zero, data, true, &entry)
	})
}

func (a *Archive) appendLayerLocked(hash types.Hash, data []byte, isLayerZero bool, out *IndexEntry) error {
	writeOffset := int64(a.header.IndexOffset)
	if _, err := a.file.WriteAt(data, writeOffset); err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "writing layer bytes").WithHash(hash.ToHex())
	}

	newEntry := IndexEntry{LayerHash: hash, DataOffset: uint64(writeOffset), DataSize: uint64(len(data))}

	newEntries := make([]IndexEntry, 0, len(a.entries)+1)
	if isLayerZero {
		newEntries = append(newEntries, newEntry)
		for _, e := range a.entries {
			if e.LayerHash != types.Zero {
				newEntries = append(newEntries, e)
			}
		}
	} else {
		newEntries = append(newEntries, a.entries...)
		newEntries = append(newEntries, newEntry)
	}

	newIndexOffset := writeOffset + int64(len(data))
	indexBytes := encodeIndex(newEntries)
	if _, err := a.file.WriteAt(indexBytes, newIndexOffset); err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "writing layer index")
	}
	if err := a.file.Sync(); err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "flushing layer data and index")
	}

	a.header = Header{
		FormatVersion: FormatVersion,
		LayerCount:    uint64(len(newEntries)),
		IndexOffset:   uint64(newIndexOffset),
		IndexSize:     uint64(len(indexBytes)),
	}
	if err := a.writeHeader(); err != nil {
		return err
	}
	if err := a.file.Sync(); err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "flushing archive header")
	}

	a.entries = newEntries
	a.byHash = btree.NewG(32, lessByHash)
	for _, e := range newEntries {
		a.byHash.ReplaceOrInsert(e)
	}

	*out = newEntry
	log.WithFields(map[string]interface{}{
		"hash": hash.ToHex(),
		"size": humanize.Bytes(uint64(len(data))),
	}).Debug("appended layer to archive")
	return nil
}

// Size returns the current on-disk size of the archive file.
func (a *Archive) Size() (int64, error) {
	info, err := a.file.Stat()
	if err != nil {
		return 0, digstoreerr.Wrap(digstoreerr.IoError, err, "statting archive file")
	}
	return info.Size(), nil
}

// Close releases the archive file handle.
func (a *Archive) Close() error {
	if err := a.file.Close(); err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "closing archive file")
	}
	return nil
}
