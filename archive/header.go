// Package archive implements component D: the single-file container
// holding Layer 0 and every Full layer of one store, with an in-file index
// for O(1) lookup by layer hash.
package archive

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
)

// Magic identifies an archive file; HeaderSize is its fixed on-disk size.
var Magic = [8]byte{'D', 'I', 'G', 'A', 'R', 'C', 'H', 0}

const FormatVersion uint32 = 1
const HeaderSize = 8 + 4 + 8 + 8 + 8 + 32 // magic+version+layer_count+index_offset+index_size+reserved

// Header is the archive's fixed leading record.
type Header struct {
	FormatVersion uint32
	LayerCount    uint64
	IndexOffset   uint64
	IndexSize     uint64
}

func (h Header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.FormatVersion)
	binary.LittleEndian.PutUint64(buf[12:20], h.LayerCount)
	binary.LittleEndian.PutUint64(buf[20:28], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[28:36], h.IndexSize)
	// remaining 32 bytes reserved, left zero
	return buf
}

func decodeHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, digstoreerr.Wrap(digstoreerr.InvalidLayerFormat, err, "reading archive header")
	}
	if !bytes.Equal(buf[0:8], Magic[:]) {
		return Header{}, digstoreerr.New(digstoreerr.StoreCorrupted, "archive header has bad magic")
	}
	h := Header{
		FormatVersion: binary.LittleEndian.Uint32(buf[8:12]),
		LayerCount:    binary.LittleEndian.Uint64(buf[12:20]),
		IndexOffset:   binary.LittleEndian.Uint64(buf[20:28]),
		IndexSize:     binary.LittleEndian.Uint64(buf[28:36]),
	}
	if h.FormatVersion != FormatVersion {
		return Header{}, digstoreerr.New(digstoreerr.UnsupportedVersion, "archive format version not supported")
	}
	return h, nil
}
