package store

import (
	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/layer"
	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/DIG-Network/digstore-sub000/urn"
)

// GetFile returns the full contents of path as of root (or the latest
// commit if root is nil), walking root_history newest-first and returning
// the first non-deleted match.
func (s *Store) GetFile(path string, at *types.Hash) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.findFileLocked(path, at)
	if err != nil {
		return nil, err
	}
	return s.readChunksLocked(entry.ChunkRefs, path, nil, nil)
}

// GetFileRange returns path's bytes in [start, end] inclusive, skipping
// chunks that don't overlap and trimming the first/last overlapping chunk.
func (s *Store) GetFileRange(path string, start, end uint64, at *types.Hash) ([]byte, error) {
	if end < start {
		return nil, digstoreerr.New(digstoreerr.InvalidByteRange, "range end precedes start")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.findFileLocked(path, at)
	if err != nil {
		return nil, err
	}
	return s.readChunksLocked(entry.ChunkRefs, path, &start, &end)
}

// findFileLocked resolves the target root (explicit at, or latest) and
// walks root_history backward from that generation, returning the newest
// non-deleted FileEntry for path.
func (s *Store) findFileLocked(path string, at *types.Hash) (types.FileEntry, error) {
	zero, err := loadLayerZero(s.archive)
	if err != nil {
		return types.FileEntry{}, err
	}

	targetGen, ok := targetGeneration(zero.RootHistory, at)
	if !ok {
		return types.FileEntry{}, digstoreerr.New(digstoreerr.FileNotFound, "no commits to resolve root from").WithPath(path)
	}

	for i := targetGen - 1; i >= 0; i-- {
		rh := zero.RootHistory[i]
		data, err := s.archive.GetLayerData(rh.RootHash)
		if err != nil {
			return types.FileEntry{}, err
		}
		decoded, err := layer.Decode(data)
		if err != nil {
			return types.FileEntry{}, err
		}
		for _, f := range decoded.Files {
			if f.Path != path {
				continue
			}
			if f.Metadata.Deleted {
				return types.FileEntry{}, digstoreerr.New(digstoreerr.FileNotFound, "file was deleted").WithPath(path)
			}
			return f, nil
		}
		if i == 0 {
			break
		}
	}
	return types.FileEntry{}, digstoreerr.New(digstoreerr.FileNotFound, "file not present at requested root").WithPath(path)
}

// targetGeneration returns the 1-based generation in history matching at (or
// len(history), the latest entry, if at is nil), ok=false if history is empty
// or at is not found.
func targetGeneration(history []types.RootHistoryEntry, at *types.Hash) (int, bool) {
	if len(history) == 0 {
		return 0, false
	}
	if at == nil {
		return len(history), true
	}
	for i, rh := range history {
		if rh.RootHash == *at {
			return i + 1, true
		}
	}
	return 0, false
}

// readChunksLocked resolves each ref's owning layer (which may predate the
// FileEntry's own layer, due to dedup), decrypts if the store is encrypted,
// and concatenates in offset order. When start/end are non-nil, chunks
// outside the range are skipped and the first/last overlapping chunk is
// trimmed.
func (s *Store) readChunksLocked(refs []types.ChunkRef, path string, start, end *uint64) ([]byte, error) {
	chunkURN := s.chunkURN(path)
	var out []byte
	for _, ref := range refs {
		if start != nil && end != nil {
			chunkEnd := ref.OffsetInFile + uint64(ref.Size) - 1
			if ref.OffsetInFile > *end || chunkEnd < *start {
				continue
			}
		}

		ownerHash, ok := s.knownChunks[ref.Hash]
		if !ok {
			return nil, digstoreerr.New(digstoreerr.ChunkNotFound, "chunk not indexed in any layer").WithHash(ref.Hash.ToHex())
		}

		data, err := s.archive.GetCachedChunk(ref.Hash, func() ([]byte, error) {
			layerData, err := s.archive.GetLayerData(ownerHash)
			if err != nil {
				return nil, err
			}
			decoded, err := layer.Decode(layerData)
			if err != nil {
				return nil, err
			}
			raw, err := decoded.ChunkData(ref.Hash)
			if err != nil {
				return nil, err
			}
			if s.Encrypted {
				return urn.DecryptChunk(raw, chunkURN)
			}
			return append([]byte(nil), raw...), nil
		})
		if err != nil {
			return nil, err
		}

		piece := data
		if start != nil && end != nil {
			lo, hi := uint64(0), uint64(len(piece))
			if *start > ref.OffsetInFile {
				lo = *start - ref.OffsetInFile
			}
			chunkEnd := ref.OffsetInFile + uint64(len(piece)) - 1
			if *end < chunkEnd {
				hi = *end - ref.OffsetInFile + 1
			}
			piece = piece[lo:hi]
		}
		out = append(out, piece...)
	}
	return out, nil
}
