package proof

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/dolthub/gozstd"
)

// ArchiveHeaderSize is the fixed archive container header size, folded
// into every claimed_size check.
const ArchiveHeaderSize = 8 + 4 + 8 + 8 + 8 + 32 // magic+version+count+offset+size+reserved

// LayerSizeEntry is one leaf input to the size merkle tree: a layer's hash
// and its on-disk byte size.
type LayerSizeEntry struct {
	LayerHash types.Hash
	LayerSize uint64
}

// SizeProof is a compact receipt that an archive backing (StoreId, Root)
// has ClaimedSize bytes on disk, without downloading it.
type SizeProof struct {
	StoreId      types.Hash
	RootHash     types.Hash
	ClaimedSize  uint64
	LayerEntries []LayerSizeEntry
	SizeRoot     types.Hash
	Binding      FileProof
}

// ProveArchiveSize builds a SizeProof. binding must be a FileProof already
// generated against root (any file in the layer serves as the anchor).
func ProveArchiveSize(storeId, root types.Hash, entries []LayerSizeEntry, binding FileProof) (*SizeProof, error) {
	var total uint64 = ArchiveHeaderSize
	leaves := make([]types.Hash, len(entries))
	for i, e := range entries {
		total += e.LayerSize
		leaves[i] = leafForEntry(e)
	}
	sizeRoot := types.MerkleRoot(leaves)

	if binding.Root != root {
		return nil, digstoreerr.New(digstoreerr.ProofGenerationFailed, "binding proof root does not match requested root")
	}

	return &SizeProof{
		StoreId:      storeId,
		RootHash:     root,
		ClaimedSize:  total,
		LayerEntries: entries,
		SizeRoot:     sizeRoot,
		Binding:      binding,
	}, nil
}

func leafForEntry(e LayerSizeEntry) types.Hash {
	buf := make([]byte, 32+8)
	copy(buf, e.LayerHash[:])
	binary.LittleEndian.PutUint64(buf[32:], e.LayerSize)
	return types.Of(buf)
}

// VerifyArchiveSize checks that p is internally consistent and claims
// exactly claimedSize bytes for (storeId, root).
func VerifyArchiveSize(p *SizeProof, storeId, root types.Hash, claimedSize uint64) bool {
	if p == nil {
		return false
	}
	if p.StoreId != storeId || p.RootHash != root {
		return false
	}
	if p.ClaimedSize != claimedSize {
		return false
	}

	var total uint64 = ArchiveHeaderSize
	leaves := make([]types.Hash, len(p.LayerEntries))
	for i, e := range p.LayerEntries {
		total += e.LayerSize
		leaves[i] = leafForEntry(e)
	}
	if total != p.ClaimedSize {
		return false
	}
	if types.MerkleRoot(leaves) != p.SizeRoot {
		return false
	}

	return Verify(&p.Binding, p.Binding.Target, root)
}

// encodeBinary is the proof's compact pre-compression binary form.
func (p *SizeProof) encodeBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(p.StoreId[:])
	buf.Write(p.RootHash[:])
	writeU64(&buf, p.ClaimedSize)
	writeU32(&buf, uint32(len(p.LayerEntries)))
	for _, e := range p.LayerEntries {
		buf.Write(e.LayerHash[:])
		writeU64(&buf, e.LayerSize)
	}
	buf.Write(p.SizeRoot[:])

	bindingJSON, err := p.Binding.MarshalJSON()
	if err != nil {
		return nil, err
	}
	writeU32(&buf, uint32(len(bindingJSON)))
	buf.Write(bindingJSON)
	return buf.Bytes(), nil
}

func decodeSizeProofBinary(data []byte) (*SizeProof, error) {
	r := bytes.NewReader(data)
	p := &SizeProof{}
	if _, err := readExact(r, p.StoreId[:]); err != nil {
		return nil, err
	}
	if _, err := readExact(r, p.RootHash[:]); err != nil {
		return nil, err
	}
	claimed, err := readU64R(r)
	if err != nil {
		return nil, err
	}
	p.ClaimedSize = claimed

	count, err := readU32R(r)
	if err != nil {
		return nil, err
	}
	p.LayerEntries = make([]LayerSizeEntry, count)
	for i := range p.LayerEntries {
		var e LayerSizeEntry
		if _, err := readExact(r, e.LayerHash[:]); err != nil {
			return nil, err
		}
		sz, err := readU64R(r)
		if err != nil {
			return nil, err
		}
		e.LayerSize = sz
		p.LayerEntries[i] = e
	}
	if _, err := readExact(r, p.SizeRoot[:]); err != nil {
		return nil, err
	}

	bindingLen, err := readU32R(r)
	if err != nil {
		return nil, err
	}
	bindingJSON := make([]byte, bindingLen)
	if _, err := readExact(r, bindingJSON); err != nil {
		return nil, err
	}
	if err := p.Binding.UnmarshalJSON(bindingJSON); err != nil {
		return nil, err
	}
	return p, nil
}

// CompressedHex renders p in the compact zstd+hex wire form that is the
// default for size proofs, so it can travel in a single CLI argument.
func (p *SizeProof) CompressedHex() (string, error) {
	raw, err := p.encodeBinary()
	if err != nil {
		return "", err
	}
	compressed := gozstd.Compress(nil, raw)
	return hex.EncodeToString(compressed), nil
}

// ParseCompressedHex is the inverse of CompressedHex.
func ParseCompressedHex(s string) (*SizeProof, error) {
	compressed, err := hex.DecodeString(s)
	if err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.InvalidProofFormat, err, "decoding proof hex")
	}
	raw, err := gozstd.Decompress(nil, compressed)
	if err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.DecompressionFailed, err, "decompressing size proof")
	}
	p, err := decodeSizeProofBinary(raw)
	if err != nil {
		return nil, digstoreerr.Wrap(digstoreerr.InvalidProofFormat, err, "decoding size proof binary form")
	}
	return p, nil
}

func readExact(r *bytes.Reader, dst []byte) (int, error) {
	n, err := r.Read(dst)
	if err != nil || n != len(dst) {
		return n, digstoreerr.New(digstoreerr.InvalidProofFormat, "truncated size proof")
	}
	return n, nil
}

func readU32R(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := readExact(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64R(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := readExact(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}
