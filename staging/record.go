package staging

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
)

// StagedFile is one pending file record between Add and Commit. Chunk data
// itself is never stored here, only the refs a committed FileEntry needs —
// the chunk bytes live in the layer once committed.
type StagedFile struct {
	Path      string
	Hash      types.Hash
	Size      uint64
	Mtime     int64
	HasMtime  bool
	ChunkRefs []types.ChunkRef
}

func encodeStagedFile(sf StagedFile) []byte {
	var buf bytes.Buffer
	writeU16(&buf, uint16(len(sf.Path)))
	buf.WriteString(sf.Path)
	buf.Write(sf.Hash[:])
	writeU64(&buf, sf.Size)
	if sf.HasMtime {
		buf.WriteByte(1)
		writeU64(&buf, uint64(sf.Mtime))
	} else {
		buf.WriteByte(0)
	}
	writeU32(&buf, uint32(len(sf.ChunkRefs)))
	for _, cr := range sf.ChunkRefs {
		buf.Write(cr.Hash[:])
		writeU64(&buf, cr.OffsetInFile)
		writeU32(&buf, cr.Size)
	}
	return buf.Bytes()
}

func decodeStagedFile(data []byte) (StagedFile, error) {
	r := bytes.NewReader(data)
	var sf StagedFile

	pathLen, err := readU16(r)
	if err != nil {
		return sf, err
	}
	pathBytes := make([]byte, pathLen)
	if _, err := io.ReadFull(r, pathBytes); err != nil {
		return sf, digstoreerr.Wrap(digstoreerr.StoreCorrupted, err, "reading staged file path")
	}
	sf.Path = string(pathBytes)

	if _, err := io.ReadFull(r, sf.Hash[:]); err != nil {
		return sf, digstoreerr.Wrap(digstoreerr.StoreCorrupted, err, "reading staged file hash")
	}
	if sf.Size, err = readU64(r); err != nil {
		return sf, err
	}

	hasMtime, err := r.ReadByte()
	if err != nil {
		return sf, digstoreerr.Wrap(digstoreerr.StoreCorrupted, err, "reading staged file mtime flag")
	}
	if hasMtime != 0 {
		sf.HasMtime = true
		secs, err := readU64(r)
		if err != nil {
			return sf, err
		}
		sf.Mtime = int64(secs)
	}

	count, err := readU32(r)
	if err != nil {
		return sf, err
	}
	sf.ChunkRefs = make([]types.ChunkRef, count)
	for i := range sf.ChunkRefs {
		var cr types.ChunkRef
		if _, err := io.ReadFull(r, cr.Hash[:]); err != nil {
			return sf, digstoreerr.Wrap(digstoreerr.StoreCorrupted, err, "reading staged chunk ref hash")
		}
		if cr.OffsetInFile, err = readU64(r); err != nil {
			return sf, err
		}
		if cr.Size, err = readU32(r); err != nil {
			return sf, err
		}
		sf.ChunkRefs[i] = cr
	}
	return sf, nil
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

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, digstoreerr.Wrap(digstoreerr.StoreCorrupted, err, "reading u16")
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, digstoreerr.Wrap(digstoreerr.StoreCorrupted, err, "reading u32")
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readU64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, digstoreerr.Wrap(digstoreerr.StoreCorrupted, err, "reading u64")
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}
