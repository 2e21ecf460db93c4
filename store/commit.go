package store

import (
	"time"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/internal/metrics"
	"github.com/DIG-Network/digstore-sub000/layer"
	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/DIG-Network/digstore-sub000/urn"
)

// CommitOptions configures Commit. FullLayer is accepted for forward
// compatibility with a future delta-layer mode (types.LayerTypeDelta is
// reserved but never produced today) and is currently always treated as
// true.
type CommitOptions struct {
	Message   string
	Author    string
	FullLayer bool
}

// Commit drains the staging area into a new Full layer, deduping chunk
// bytes against every chunk already known to the archive, appends the
// layer, and extends Layer 0's root_history — in that order, so a crash
// between the two leaves the new layer orphaned but the archive otherwise
// intact. The commit's identity — returned here, recorded in root_history,
// and the value every later ProveFile/ProveRange/ProveArchiveSize/GetFile
// "at" argument refers back to — is the layer's merkle root itself, not a
// hash of its encoded bytes: proofs are verified against that same root,
// so the two must be one and the same value.
func (s *Store) Commit(opts CommitOptions) (types.Hash, error) {
	start := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.staging.All()
	files := make([]types.FileEntry, len(staged))
	leaves := make([]types.Hash, len(staged))
	var newChunks []types.Chunk
	seenNew := map[types.Hash]bool{}
	var dedupedCount, writtenBytes int

	for i, sf := range staged {
		files[i] = types.FileEntry{
			Path:      sf.Path,
			Hash:      sf.Hash,
			Size:      sf.Size,
			ChunkRefs: sf.ChunkRefs,
			Metadata:  types.FileMetadata{Mtime: sf.Mtime},
		}
		leaves[i] = sf.Hash

		result, err := s.engine.ChunkFile(s.absPath(sf.Path))
		if err != nil {
			return types.Hash{}, err
		}
		chunkURN := s.chunkURN(sf.Path)
		for _, c := range result.Chunks {
			if _, known := s.knownChunks[c.Hash]; known {
				dedupedCount++
				continue
			}
			if seenNew[c.Hash] {
				continue
			}
			seenNew[c.Hash] = true

			data := c.Data
			if s.Encrypted {
				enc, err := urn.EncryptChunk(data, chunkURN)
				if err != nil {
					return types.Hash{}, err
				}
				data = enc
			}
			newChunks = append(newChunks, types.Chunk{Hash: c.Hash, OffsetInFile: c.OffsetInFile, Size: uint32(len(data)), Data: data})
			writtenBytes += len(data)
		}
	}

	merkleRoot := types.MerkleRoot(leaves)
	if merkleRoot == types.Zero {
		return types.Hash{}, digstoreerr.New(digstoreerr.EmptyCommit, "nothing staged to commit")
	}

	zero, err := loadLayerZero(s.archive)
	if err != nil {
		return types.Hash{}, err
	}
	generation := uint64(1)
	if latest, ok := zero.LatestRoot(); ok {
		generation = latest.Generation + 1
	}

	l := &layer.Layer{
		Header: layer.Header{
			LayerType:  types.LayerTypeFull,
			Generation: generation,
			Timestamp:  uint64(time.Now().Unix()),
			MerkleRoot: merkleRoot,
		},
		Files:  files,
		Chunks: newChunks,
		Metadata: layer.Metadata{
			Message:    opts.Message,
			Author:     opts.Author,
			Generation: generation,
		},
	}

	encoded, err := layer.Encode(l)
	if err != nil {
		return types.Hash{}, err
	}
	// The layer's merkle root doubles as its archive key and as the commit
	// root exposed to callers, so a proof built against decoded.Header.MerkleRoot
	// is always binding against the same value a caller already holds.
	commitRoot := merkleRoot

	if _, err := s.archive.AppendLayer(commitRoot, encoded); err != nil {
		return types.Hash{}, err
	}

	for _, c := range newChunks {
		s.knownChunks[c.Hash] = commitRoot
	}

	zero.RootHistory = append(zero.RootHistory, types.RootHistoryEntry{
		RootHash:   commitRoot,
		Generation: generation,
		Timestamp:  int64(l.Header.Timestamp),
		LayerCount: uint64(len(s.archive.ListLayers())),
	})
	if err := s.saveLayerZero(zero); err != nil {
		return types.Hash{}, err
	}

	if err := s.staging.Clear(); err != nil {
		return types.Hash{}, err
	}

	storeLabel := s.StoreId.ToHex()
	metrics.CommitDuration.WithLabelValues(storeLabel).Observe(time.Since(start).Seconds())
	metrics.BytesWritten.WithLabelValues(storeLabel).Add(float64(writtenBytes))
	metrics.ChunksDeduped.WithLabelValues(storeLabel).Add(float64(dedupedCount))

	log.WithFields(map[string]interface{}{
		"commit_root": commitRoot.ToHex(),
		"generation":  generation,
		"files":       len(files),
		"new_chunks":  len(newChunks),
		"deduped":     dedupedCount,
	}).Info("committed layer")
	return commitRoot, nil
}
