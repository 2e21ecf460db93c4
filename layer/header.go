// Package layer implements binary encode/decode of a layer — header, file
// index, chunk index, chunk data region, and merkle root. Field order and
// sizes are fixed exactly so that independently written encoders and
// decoders agree byte-for-byte.
package layer

import (
	"encoding/binary"
	"io"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
)

// Magic identifies a layer's byte stream.
var Magic = [4]byte{'D', 'I', 'G', 'S'}

// FormatVersion is the current on-disk layer format version.
const FormatVersion uint16 = 1

// HeaderSize is the fixed on-disk header size: 124 bytes of fields padded
// to a round 128 with 4 bytes reserved for future flags/extensions.
const HeaderSize = 128

const headerPayloadSize = 4 + 2 + 1 + 1 + 8 + 32 + 8 + 4 + 4 + 8 + 8 + 8 + 32 + 4 // 124
const reservedSize = HeaderSize - headerPayloadSize                               // 4

// Header is the fixed-size, little-endian layer header.
type Header struct {
	FormatVersion     uint16
	LayerType         types.LayerType
	Flags             uint8
	Generation        uint64
	ParentHash        types.Hash
	Timestamp         uint64
	FilesCount        uint32
	ChunksCount       uint32
	FilesIndexOffset  uint64
	ChunksIndexOffset uint64
	ChunkDataOffset   uint64
	MerkleRoot        types.Hash
	// MetadataSize is the length in bytes of the commit metadata trailer
	// that follows the chunk data region at the very end of the encoded
	// layer (data[len(data)-MetadataSize:]).
	MetadataSize uint32
}

// EncodeTo writes the 128-byte header.
func (h Header) EncodeTo(w io.Writer) error {
	buf := make([]byte, HeaderSize)
	off := 0
	copy(buf[off:off+4], Magic[:])
	off += 4
	binary.LittleEndian.PutUint16(buf[off:], h.FormatVersion)
	off += 2
	buf[off] = byte(h.LayerType)
	off++
	buf[off] = h.Flags
	off++
	binary.LittleEndian.PutUint64(buf[off:], h.Generation)
	off += 8
	copy(buf[off:off+32], h.ParentHash[:])
	off += 32
	binary.LittleEndian.PutUint64(buf[off:], h.Timestamp)
	off += 8
	binary.LittleEndian.PutUint32(buf[off:], h.FilesCount)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:], h.ChunksCount)
	off += 4
	binary.LittleEndian.PutUint64(buf[off:], h.FilesIndexOffset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.ChunksIndexOffset)
	off += 8
	binary.LittleEndian.PutUint64(buf[off:], h.ChunkDataOffset)
	off += 8
	copy(buf[off:off+32], h.MerkleRoot[:])
	off += 32
	binary.LittleEndian.PutUint32(buf[off:], h.MetadataSize)
	off += 4
	// remaining reservedSize bytes stay zero.
	_, err := w.Write(buf)
	if err != nil {
		return digstoreerr.Wrap(digstoreerr.IoError, err, "writing layer header")
	}
	return nil
}

// DecodeHeader reads and validates a 128-byte header.
func DecodeHeader(r io.Reader) (Header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return Header{}, digstoreerr.Wrap(digstoreerr.IoError, err, "reading layer header")
	}

	var magic [4]byte
	copy(magic[:], buf[0:4])
	if magic != Magic {
		return Header{}, digstoreerr.New(digstoreerr.InvalidLayerFormat, "bad layer magic")
	}

	off := 4
	h := Header{}
	h.FormatVersion = binary.LittleEndian.Uint16(buf[off:])
	off += 2
	if h.FormatVersion != FormatVersion {
		return Header{}, digstoreerr.New(digstoreerr.InvalidLayerFormat, "unsupported layer format version")
	}
	h.LayerType = types.LayerType(buf[off])
	off++
	h.Flags = buf[off]
	off++
	h.Generation = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	copy(h.ParentHash[:], buf[off:off+32])
	off += 32
	h.Timestamp = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.FilesCount = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.ChunksCount = binary.LittleEndian.Uint32(buf[off:])
	off += 4
	h.FilesIndexOffset = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.ChunksIndexOffset = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	h.ChunkDataOffset = binary.LittleEndian.Uint64(buf[off:])
	off += 8
	copy(h.MerkleRoot[:], buf[off:off+32])
	off += 32
	h.MetadataSize = binary.LittleEndian.Uint32(buf[off:])

	return h, nil
}
