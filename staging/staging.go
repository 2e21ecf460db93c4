package staging

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/internal/logctx"
	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"
	"github.com/edsrzf/mmap-go"
)

var log = logctx.For("staging")

// Area is the binary, append-friendly holding area for files added but not
// yet committed. Mutations always go through persist, which rebuilds the
// file as header+data+index and installs it via write-to-temp-then-rename,
// so the on-disk file is valid after every call. This buffered-rewrite
// discipline stands in for a raw streaming-append log: a single-writer
// local staging area never needs concurrent independent appenders, and the
// on-disk format and visibility rules come out the same either way.
type Area struct {
	mu      sync.Mutex
	path    string
	entries []StagedFile
	byPath  map[string]int // path -> index into entries
}

// New returns a staging area bound to path; call Load before use.
func New(path string) *Area {
	return &Area{path: path, byPath: make(map[string]int)}
}

// Load reads an existing staging file at the area's path, mmap-ing it to
// decode the header, index and records, or initializes a fresh empty one if
// no file exists yet.
func (a *Area) Load() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := os.Open(a.path)
	if os.IsNotExist(err) {
		a.entries = nil
		a.byPath = make(map[string]int)
		return a.persistLocked()
	}
	if err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "opening staging file").WithPath(a.path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "statting staging file").WithPath(a.path)
	}
	if info.Size() == 0 {
		a.entries = nil
		a.byPath = make(map[string]int)
		return nil
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "mmapping staging file").WithPath(a.path)
	}
	defer m.Unmap()

	data := []byte(m)
	h, err := decodeHeader(bytes.NewReader(data[:HeaderSize]))
	if err != nil {
		return err
	}
	if uint64(len(data)) < h.IndexOffset+h.IndexSize {
		return digstoreerr.New(digstoreerr.StoreCorrupted, "staging index extends past file end").WithPath(a.path)
	}

	idxEntries, err := decodeIndexEntries(bytes.NewReader(data[h.IndexOffset:h.IndexOffset+h.IndexSize]), h.FileCount)
	if err != nil {
		return err
	}

	entries := make([]StagedFile, 0, len(idxEntries))
	byPath := make(map[string]int, len(idxEntries))
	for _, ie := range idxEntries {
		end := ie.DataOffset + uint64(ie.DataSize)
		if end > uint64(len(data)) {
			return digstoreerr.New(digstoreerr.StoreCorrupted, "staged record extends past file end").WithPath(a.path)
		}
		sf, err := decodeStagedFile(data[ie.DataOffset:end])
		if err != nil {
			return err
		}
		byPath[sf.Path] = len(entries)
		entries = append(entries, sf)
	}

	a.entries = entries
	a.byPath = byPath
	log.WithFields(map[string]interface{}{
		"path":  a.path,
		"files": len(entries),
		"size":  humanize.Bytes(uint64(info.Size())),
	}).Debug("loaded staging area")
	return nil
}

// StageOne records or replaces sf and persists the area immediately.
func (a *Area) StageOne(sf StagedFile) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.putLocked(sf)
	return a.persistLocked()
}

// StageMany records or replaces every entry in sfs, looping the individual
// stage step but deferring the (here, always-compacting) flush to the end.
func (a *Area) StageMany(sfs []StagedFile) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, sf := range sfs {
		a.putLocked(sf)
	}
	return a.persistLocked()
}

func (a *Area) putLocked(sf StagedFile) {
	if i, ok := a.byPath[sf.Path]; ok {
		a.entries[i] = sf
		return
	}
	a.byPath[sf.Path] = len(a.entries)
	a.entries = append(a.entries, sf)
}

// Get returns the staged record for path, if any.
func (a *Area) Get(path string) (StagedFile, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i, ok := a.byPath[path]
	if !ok {
		return StagedFile{}, false
	}
	return a.entries[i], true
}

// Contains reports whether path is currently staged.
func (a *Area) Contains(path string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.byPath[path]
	return ok
}

// All returns every staged file in insertion order.
func (a *Area) All() []StagedFile {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]StagedFile, len(a.entries))
	copy(out, a.entries)
	return out
}

// Count returns the number of currently staged files.
func (a *Area) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// Clear empties the staging area, used after a successful commit.
func (a *Area) Clear() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = nil
	a.byPath = make(map[string]int)
	return a.persistLocked()
}

// Flush forces a compacting rewrite; with this implementation every mutator
// already compacts, so Flush is equivalent to re-persisting current state.
// Kept as an explicit operation for callers that want to force durability
// without staging anything new.
func (a *Area) Flush() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persistLocked()
}

// persistLocked rebuilds the staging file as header+data+index and installs
// it atomically via write-to-temp-then-rename (caller must hold a.mu).
func (a *Area) persistLocked() error {
	var dataBuf bytes.Buffer
	idxEntries := make([]indexEntry, 0, len(a.entries))
	dataOffset := uint64(HeaderSize)
	for _, sf := range a.entries {
		rec := encodeStagedFile(sf)
		idxEntries = append(idxEntries, indexEntry{
			PathHash:   xxhash.Sum64String(sf.Path),
			DataOffset: dataOffset,
			DataSize:   uint32(len(rec)),
			PathLength: uint16(len(sf.Path)),
		})
		dataBuf.Write(rec)
		dataOffset += uint64(len(rec))
	}

	indexBytes := encodeIndexEntries(idxEntries)
	h := header{
		FormatVersion: FormatVersion,
		FileCount:     uint64(len(a.entries)),
		IndexOffset:   dataOffset,
		IndexSize:     uint64(len(indexBytes)),
		DataOffset:    HeaderSize,
		DataSize:      uint64(dataBuf.Len()),
		Compression:   CompressionNone,
	}

	dir := filepath.Dir(a.path)
	tmp, err := os.CreateTemp(dir, ".digstage-*.tmp")
	if err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "creating temp staging file").WithPath(a.path)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.Write(h.encode()); err != nil {
		tmp.Close()
		return digstoreerr.Wrap(digstoreerr.IoError, err, "writing staging header")
	}
	if _, err := tmp.Write(dataBuf.Bytes()); err != nil {
		tmp.Close()
		return digstoreerr.Wrap(digstoreerr.IoError, err, "writing staging data")
	}
	if _, err := tmp.Write(indexBytes); err != nil {
		tmp.Close()
		return digstoreerr.Wrap(digstoreerr.IoError, err, "writing staging index")
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return digstoreerr.Wrap(digstoreerr.IoError, err, "syncing staging file")
	}
	if err := tmp.Close(); err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "closing temp staging file")
	}
	if err := os.Rename(tmpPath, a.path); err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "installing staging file").WithPath(a.path)
	}
	return nil
}
