package proof

import (
	"crypto/sha256"
	"encoding/json"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
)

// RangeChunk is one chunk of the proven file, carried whole: a byte-range
// proof must let the verifier recompute SHA-256(concat(all chunks)) and
// check it against the file's hash, so every chunk's bytes travel with the
// proof — not only the ones intersecting the requested range. InRange flags
// which chunks the caller actually asked about, so a verifier can slice the
// answer out without re-deriving chunk boundaries itself.
type RangeChunk struct {
	Hash         types.Hash `json:"hash"`
	OffsetInFile uint64     `json:"offset_in_file"`
	Size         uint32     `json:"size"`
	Data         []byte     `json:"data"`
	InRange      bool       `json:"in_range"`
}

// RangeProof proves that bytes [Start, End] (inclusive) of a file equal a
// specific slice of chunk data, binding that claim to a committed root via
// the embedded FileProof.
type RangeProof struct {
	File   FileProof    `json:"file"`
	Start  uint64       `json:"start"`
	End    uint64       `json:"end"`
	Chunks []RangeChunk `json:"chunks"`
}

// ProveRange builds a RangeProof for files[idx matching path]'s bytes
// [start, end] inclusive.
func ProveRange(files []types.FileEntry, path string, start, end uint64, root types.Hash) (*RangeProof, error) {
	if end < start {
		return nil, digstoreerr.New(digstoreerr.InvalidByteRange, "range end precedes start")
	}

	var target *types.FileEntry
	for i := range files {
		if files[i].Path == path {
			target = &files[i]
			break
		}
	}
	if target == nil {
		return nil, digstoreerr.New(digstoreerr.FileNotFound, "file not present in layer").WithPath(path)
	}

	fp, err := ProveFile(files, path, root)
	if err != nil {
		return nil, err
	}

	chunks := make([]RangeChunk, len(target.ChunkRefs))
	for i, ref := range target.ChunkRefs {
		chunkEnd := ref.OffsetInFile + uint64(ref.Size) - 1
		inRange := ref.OffsetInFile <= end && chunkEnd >= start
		chunks[i] = RangeChunk{
			Hash:         ref.Hash,
			OffsetInFile: ref.OffsetInFile,
			Size:         ref.Size,
			InRange:      inRange,
		}
	}

	return &RangeProof{File: *fp, Start: start, End: end, Chunks: chunks}, nil
}

// FillChunkData is called by the orchestrator once it has read every
// chunk's bytes off disk (needed to let Verify recompute the file hash),
// keeping proof.Package free of any archive/layer dependency.
func (p *RangeProof) FillChunkData(dataByHash map[types.Hash][]byte) error {
	for i := range p.Chunks {
		d, ok := dataByHash[p.Chunks[i].Hash]
		if !ok {
			return digstoreerr.New(digstoreerr.ChunkNotFound, "missing chunk data while building range proof").WithHash(p.Chunks[i].Hash.ToHex())
		}
		p.Chunks[i].Data = d
	}
	return nil
}

// ExtractRange returns the requested byte range, assuming the proof has
// already been filled and verified.
func (p *RangeProof) ExtractRange() []byte {
	var full []byte
	for _, c := range p.Chunks {
		full = append(full, c.Data...)
	}
	if p.Start >= uint64(len(full)) {
		return nil
	}
	end := p.End + 1
	if end > uint64(len(full)) {
		end = uint64(len(full))
	}
	return full[p.Start:end]
}

// VerifyRange checks the embedded file-existence proof, that each chunk's
// bytes hash to its declared hash, and that concatenating every chunk in
// order reproduces expectedFileHash.
func VerifyRange(p *RangeProof, expectedFileHash, expectedRoot types.Hash) bool {
	if p == nil {
		return false
	}
	if !Verify(&p.File, expectedFileHash, expectedRoot) {
		return false
	}

	h := sha256.New()
	for _, c := range p.Chunks {
		if types.Of(c.Data) != c.Hash {
			return false
		}
		h.Write(c.Data)
	}
	var recomputed types.Hash
	copy(recomputed[:], h.Sum(nil))
	return recomputed == expectedFileHash
}

// MarshalJSON renders the compact hex wire schema used for range proofs.
func (p *RangeProof) MarshalJSON() ([]byte, error) {
	type chunkWire struct {
		Hash         string `json:"hash"`
		OffsetInFile uint64 `json:"offset_in_file"`
		Size         uint32 `json:"size"`
		Data         string `json:"data_hex"`
		InRange      bool   `json:"in_range"`
	}
	fileJSON, err := p.File.MarshalJSON()
	if err != nil {
		return nil, err
	}
	wireChunks := make([]chunkWire, len(p.Chunks))
	for i, c := range p.Chunks {
		wireChunks[i] = chunkWire{
			Hash:         c.Hash.ToHex(),
			OffsetInFile: c.OffsetInFile,
			Size:         c.Size,
			Data:         hexEncode(c.Data),
			InRange:      c.InRange,
		}
	}
	return json.Marshal(struct {
		File   json.RawMessage `json:"file"`
		Start  uint64          `json:"start"`
		End    uint64          `json:"end"`
		Chunks []chunkWire     `json:"chunks"`
	}{File: fileJSON, Start: p.Start, End: p.End, Chunks: wireChunks})
}
