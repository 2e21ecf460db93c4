package layer

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
)

const chunkIndexEntrySize = 32 + 8 + 4  // hash + offset_in_layer + size
const fileMetadataSize = 4 + 8 + 1      // mode + mtime + flags(bool as u8)
const chunkRefSize = 32 + 8 + 4         // hash + offset_in_file + size

// Encode serializes l into its canonical on-disk form. The returned bytes'
// SHA-256 is the layer's identity hash (computed by callers via types.Of).
func Encode(l *Layer) ([]byte, error) {
	var filesBuf bytes.Buffer
	for _, f := range l.Files {
		if len(f.Path) > 0xFFFF {
			return nil, digstoreerr.New(digstoreerr.InvalidFilePath, "path too long to encode").WithPath(f.Path)
		}
		writeU16(&filesBuf, uint16(len(f.Path)))
		filesBuf.WriteString(f.Path)
		filesBuf.Write(f.Hash[:])
		writeU64(&filesBuf, f.Size)
		writeU32(&filesBuf, uint32(len(f.ChunkRefs)))
		for _, cr := range f.ChunkRefs {
			filesBuf.Write(cr.Hash[:])
			writeU64(&filesBuf, cr.OffsetInFile)
			writeU32(&filesBuf, cr.Size)
		}
		writeU32(&filesBuf, f.Metadata.Mode)
		writeU64(&filesBuf, uint64(f.Metadata.Mtime))
		if f.Metadata.Deleted {
			filesBuf.WriteByte(1)
		} else {
			filesBuf.WriteByte(0)
		}
	}

	var chunksIndexBuf bytes.Buffer
	var chunkDataBuf bytes.Buffer
	var dataOffset uint64
	for _, c := range l.Chunks {
		chunksIndexBuf.Write(c.Hash[:])
		writeU64(&chunksIndexBuf, dataOffset)
		writeU32(&chunksIndexBuf, uint32(len(c.Data)))
		chunkDataBuf.Write(c.Data)
		dataOffset += uint64(len(c.Data))
	}

	metadataBuf := encodeMetadata(l.Metadata)

	filesIndexOffset := uint64(HeaderSize)
	chunksIndexOffset := filesIndexOffset + uint64(filesBuf.Len())
	chunkDataOffset := chunksIndexOffset + uint64(chunksIndexBuf.Len())

	h := l.Header
	h.FormatVersion = FormatVersion
	h.FilesCount = uint32(len(l.Files))
	h.ChunksCount = uint32(len(l.Chunks))
	h.FilesIndexOffset = filesIndexOffset
	h.ChunksIndexOffset = chunksIndexOffset
	h.ChunkDataOffset = chunkDataOffset
	h.MetadataSize = uint32(len(metadataBuf))

	var out bytes.Buffer
	if err := h.EncodeTo(&out); err != nil {
		return nil, err
	}
	out.Write(filesBuf.Bytes())
	out.Write(chunksIndexBuf.Bytes())
	out.Write(chunkDataBuf.Bytes())
	out.Write(metadataBuf)
	return out.Bytes(), nil
}

// encodeMetadata serializes a layer's commit metadata block: message and
// author as length-prefixed strings, generation as a fixed u64.
func encodeMetadata(m Metadata) []byte {
	var buf bytes.Buffer
	writeU16(&buf, uint16(len(m.Message)))
	buf.WriteString(m.Message)
	writeU16(&buf, uint16(len(m.Author)))
	buf.WriteString(m.Author)
	writeU64(&buf, m.Generation)
	return buf.Bytes()
}

func decodeMetadata(buf []byte) (Metadata, error) {
	r := bytes.NewReader(buf)
	var m Metadata
	msgLen, err := readU16(r)
	if err != nil {
		return m, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated metadata message length")
	}
	msgBytes := make([]byte, msgLen)
	if _, err := io.ReadFull(r, msgBytes); err != nil {
		return m, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated metadata message")
	}
	m.Message = string(msgBytes)

	authorLen, err := readU16(r)
	if err != nil {
		return m, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated metadata author length")
	}
	authorBytes := make([]byte, authorLen)
	if _, err := io.ReadFull(r, authorBytes); err != nil {
		return m, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated metadata author")
	}
	m.Author = string(authorBytes)

	gen, err := readU64(r)
	if err != nil {
		return m, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated metadata generation")
	}
	m.Generation = gen
	return m, nil
}

// Decoded is the reader-side view of a layer: file entries are fully
// materialized, but chunk bytes are fetched lazily via ChunkData, so
// decoding a layer's metadata never requires reading its full chunk data.
type Decoded struct {
	Header      Header
	Files       []types.FileEntry
	ChunkIndex  []ChunkIndexEntry
	Metadata    Metadata
	chunkByHash map[types.Hash]ChunkIndexEntry
	raw         []byte
}

// Decode validates magic/version, loads the header and both indices, and
// leaves chunk data addressable by (offset, size) lookup without copying it.
func Decode(data []byte) (*Decoded, error) {
	r := bytes.NewReader(data)
	h, err := DecodeHeader(r)
	if err != nil {
		return nil, err
	}

	if int(h.FilesIndexOffset) > len(data) || int(h.ChunksIndexOffset) > len(data) || int(h.ChunkDataOffset) > len(data) {
		return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "layer section offset beyond buffer")
	}

	files, err := decodeFiles(data[h.FilesIndexOffset:h.ChunksIndexOffset], int(h.FilesCount))
	if err != nil {
		return nil, err
	}

	chunkIndex, chunkByHash, err := decodeChunkIndex(data[h.ChunksIndexOffset:h.ChunkDataOffset], int(h.ChunksCount))
	if err != nil {
		return nil, err
	}

	leaves := make([]types.Hash, len(files))
	for i, f := range files {
		leaves[i] = f.Hash
	}
	if recomputed := types.MerkleRoot(leaves); recomputed != h.MerkleRoot {
		return nil, digstoreerr.New(digstoreerr.LayerVerificationFailed, "merkle root does not match file index")
	}

	var metadata Metadata
	if h.MetadataSize > 0 {
		if uint64(h.MetadataSize) > uint64(len(data)) {
			return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "metadata trailer extends past buffer")
		}
		metadataStart := uint64(len(data)) - uint64(h.MetadataSize)
		if metadataStart < h.ChunkDataOffset {
			return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "metadata trailer overlaps chunk data")
		}
		metadata, err = decodeMetadata(data[metadataStart:])
		if err != nil {
			return nil, err
		}
	}

	return &Decoded{
		Header:      h,
		Files:       files,
		ChunkIndex:  chunkIndex,
		Metadata:    metadata,
		chunkByHash: chunkByHash,
		raw:         data,
	}, nil
}

// Hash returns the layer's identity hash, the SHA-256 of its exact encoded
// bytes as decoded (a crash-recovered re-encode would reproduce them, since
// Decode never mutates field order).
func (d *Decoded) Hash() types.Hash { return types.Of(d.raw) }

// ChunkData returns the raw bytes for hash h from the chunk data region.
func (d *Decoded) ChunkData(h types.Hash) ([]byte, error) {
	entry, ok := d.chunkByHash[h]
	if !ok {
		return nil, digstoreerr.New(digstoreerr.ChunkNotFound, "chunk not present in layer").WithHash(h.ToHex())
	}
	start := d.Header.ChunkDataOffset + entry.OffsetInLayer
	end := start + uint64(entry.Size)
	if end > uint64(len(d.raw)) {
		return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "chunk data region truncated").WithHash(h.ToHex())
	}
	return d.raw[start:end], nil
}

// HasChunk reports whether hash h is owned by this layer.
func (d *Decoded) HasChunk(h types.Hash) bool {
	_, ok := d.chunkByHash[h]
	return ok
}

func decodeFiles(buf []byte, count int) ([]types.FileEntry, error) {
	files := make([]types.FileEntry, 0, count)
	r := bytes.NewReader(buf)
	for i := 0; i < count; i++ {
		pathLen, err := readU16(r)
		if err != nil {
			return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated file index")
		}
		pathBytes := make([]byte, pathLen)
		if _, err := io.ReadFull(r, pathBytes); err != nil {
			return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated file path")
		}
		var hash types.Hash
		if _, err := io.ReadFull(r, hash[:]); err != nil {
			return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated file hash")
		}
		size, err := readU64(r)
		if err != nil {
			return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated file size")
		}
		refCount, err := readU32(r)
		if err != nil {
			return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated chunk ref count")
		}
		refs := make([]types.ChunkRef, refCount)
		for j := range refs {
			var rh types.Hash
			if _, err := io.ReadFull(r, rh[:]); err != nil {
				return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated chunk ref")
			}
			off, err := readU64(r)
			if err != nil {
				return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated chunk ref offset")
			}
			sz, err := readU32(r)
			if err != nil {
				return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated chunk ref size")
			}
			refs[j] = types.ChunkRef{Hash: rh, OffsetInFile: off, Size: sz}
		}
		mode, err := readU32(r)
		if err != nil {
			return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated metadata mode")
		}
		mtime, err := readU64(r)
		if err != nil {
			return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated metadata mtime")
		}
		flagByte, err := r.ReadByte()
		if err != nil {
			return nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated metadata flags")
		}
		files = append(files, types.FileEntry{
			Path:      string(pathBytes),
			Hash:      hash,
			Size:      size,
			ChunkRefs: refs,
			Metadata: types.FileMetadata{
				Mode:    mode,
				Mtime:   int64(mtime),
				Deleted: flagByte&1 != 0,
			},
		})
	}
	return files, nil
}

func decodeChunkIndex(buf []byte, count int) ([]ChunkIndexEntry, map[types.Hash]ChunkIndexEntry, error) {
	if len(buf) < count*chunkIndexEntrySize {
		return nil, nil, digstoreerr.New(digstoreerr.InvalidLayerFormat, "truncated chunk index")
	}
	entries := make([]ChunkIndexEntry, count)
	byHash := make(map[types.Hash]ChunkIndexEntry, count)
	off := 0
	for i := 0; i < count; i++ {
		var e ChunkIndexEntry
		copy(e.Hash[:], buf[off:off+32])
		off += 32
		e.OffsetInLayer = binary.LittleEndian.Uint64(buf[off:])
		off += 8
		e.Size = binary.LittleEndian.Uint32(buf[off:])
		off += 4
		entries[i] = e
		byHash[e.Hash] = e
	}
	return entries, byHash, nil
}

func writeU16(w *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.Write(b[:])
}
func writeU32(w *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.Write(b[:])
}
func writeU64(w *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.Write(b[:])
}
func readU16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}
func readU32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
func readU64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
