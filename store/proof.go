package store

import (
	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/layer"
	"github.com/DIG-Network/digstore-sub000/proof"
	"github.com/DIG-Network/digstore-sub000/types"
)

// ProveFile builds a file-existence proof against the single commit layer
// named by at (or the latest commit) — proofs are always built over one
// layer's own file set, not the merged cross-commit view GetFile walks.
func (s *Store) ProveFile(path string, at *types.Hash) (*proof.FileProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	decoded, err := s.targetLayerLocked(at)
	if err != nil {
		return nil, err
	}
	return proof.ProveFile(decoded.Files, path, decoded.Header.MerkleRoot)
}

// ProveRange builds a byte-range proof against the single commit layer
// named by at (or the latest commit), filling in actual chunk bytes for
// every chunk of the file, not only the chunks intersecting [start, end].
func (s *Store) ProveRange(path string, start, end uint64, at *types.Hash) (*proof.RangeProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	decoded, err := s.targetLayerLocked(at)
	if err != nil {
		return nil, err
	}
	rp, err := proof.ProveRange(decoded.Files, path, start, end, decoded.Header.MerkleRoot)
	if err != nil {
		return nil, err
	}

	dataByHash := make(map[types.Hash][]byte, len(rp.Chunks))
	for _, rc := range rp.Chunks {
		if _, ok := dataByHash[rc.Hash]; ok {
			continue
		}
		ownerHash, ok := s.knownChunks[rc.Hash]
		if !ok {
			return nil, digstoreerr.New(digstoreerr.ChunkNotFound, "chunk not indexed in any layer").WithHash(rc.Hash.ToHex())
		}
		data, err := s.archive.GetCachedChunk(rc.Hash, func() ([]byte, error) {
			layerData, err := s.archive.GetLayerData(ownerHash)
			if err != nil {
				return nil, err
			}
			owner, err := layer.Decode(layerData)
			if err != nil {
				return nil, err
			}
			raw, err := owner.ChunkData(rc.Hash)
			if err != nil {
				return nil, err
			}
			return append([]byte(nil), raw...), nil
		})
		if err != nil {
			return nil, err
		}
		dataByHash[rc.Hash] = data
	}
	if err := rp.FillChunkData(dataByHash); err != nil {
		return nil, err
	}
	return rp, nil
}

// ProveArchiveSize builds a compact size receipt for the archive backing
// this store, anchored to the commit named by at (or the latest commit)
// via a binding file-existence proof. The claimed size is the archive
// header plus the DataSize of every indexed layer; it does not count the
// layer index at the end of the file or the bytes of superseded Layer 0
// versions, so it is smaller than the archive file's on-disk size.
func (s *Store) ProveArchiveSize(at *types.Hash) (*proof.SizeProof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	decoded, err := s.targetLayerLocked(at)
	if err != nil {
		return nil, err
	}
	if len(decoded.Files) == 0 {
		return nil, digstoreerr.New(digstoreerr.ProofGenerationFailed, "commit layer has no files to bind the size proof to")
	}
	binding, err := proof.ProveFile(decoded.Files, decoded.Files[0].Path, decoded.Header.MerkleRoot)
	if err != nil {
		return nil, err
	}

	entries := make([]proof.LayerSizeEntry, 0, len(s.archive.ListLayers()))
	for _, e := range s.archive.ListLayers() {
		entries = append(entries, proof.LayerSizeEntry{LayerHash: e.LayerHash, LayerSize: e.DataSize})
	}

	return proof.ProveArchiveSize(s.StoreId, decoded.Header.MerkleRoot, entries, *binding)
}

// targetLayerLocked decodes the single layer named by at (or the latest
// commit), requiring s.mu already held.
func (s *Store) targetLayerLocked(at *types.Hash) (*layer.Decoded, error) {
	zero, err := loadLayerZero(s.archive)
	if err != nil {
		return nil, err
	}
	var rootHash types.Hash
	if at != nil {
		rootHash = *at
	} else {
		latest, ok := zero.LatestRoot()
		if !ok {
			return nil, digstoreerr.New(digstoreerr.LayerNotFound, "store has no commits yet")
		}
		rootHash = latest.RootHash
	}

	data, err := s.archive.GetLayerData(rootHash)
	if err != nil {
		return nil, err
	}
	return layer.Decode(data)
}
