// Package staging implements component E: the binary, memory-mapped
// staging area holding pending file entries between add and commit.
package staging

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
)

var Magic = [8]byte{'D', 'I', 'G', 'S', 'T', 'A', 'G', 'E'}

const FormatVersion uint32 = 1

// HeaderSize is the fixed on-disk staging header size (88 bytes):
// magic(8) + version(4) + file_count(8) + index_offset(8) + index_size(8)
// + data_offset(8) + data_size(8) + compression(4) + reserved(32).
const HeaderSize = 8 + 4 + 8 + 8 + 8 + 8 + 8 + 4 + 32

// Compression tags the (currently unused) staging-record compression
// field; this core always writes 0.
type Compression uint32

const CompressionNone Compression = 0

type header struct {
	FormatVersion uint32
	FileCount     uint64
	IndexOffset   uint64
	IndexSize     uint64
	DataOffset    uint64
	DataSize      uint64
	Compression   Compression
}

func (h header) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:8], Magic[:])
	binary.LittleEndian.PutUint32(buf[8:12], h.FormatVersion)
	binary.LittleEndian.PutUint64(buf[12:20], h.FileCount)
	binary.LittleEndian.PutUint64(buf[20:28], h.IndexOffset)
	binary.LittleEndian.PutUint64(buf[28:36], h.IndexSize)
	binary.LittleEndian.PutUint64(buf[36:44], h.DataOffset)
	binary.LittleEndian.PutUint64(buf[44:52], h.DataSize)
	binary.LittleEndian.PutUint32(buf[52:56], uint32(h.Compression))
	// remaining 32 bytes reserved, left zero
	return buf
}

func decodeHeader(r io.Reader) (header, error) {
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return header{}, digstoreerr.Wrap(digstoreerr.IoError, err, "reading staging header")
	}
	if !bytes.Equal(buf[0:8], Magic[:]) {
		return header{}, digstoreerr.New(digstoreerr.StoreCorrupted, "staging file has bad magic")
	}
	h := header{
		FormatVersion: binary.LittleEndian.Uint32(buf[8:12]),
		FileCount:     binary.LittleEndian.Uint64(buf[12:20]),
		IndexOffset:   binary.LittleEndian.Uint64(buf[20:28]),
		IndexSize:     binary.LittleEndian.Uint64(buf[28:36]),
		DataOffset:    binary.LittleEndian.Uint64(buf[36:44]),
		DataSize:      binary.LittleEndian.Uint64(buf[44:52]),
		Compression:   Compression(binary.LittleEndian.Uint32(buf[52:56])),
	}
	if h.FormatVersion != FormatVersion {
		return header{}, digstoreerr.New(digstoreerr.UnsupportedVersion, "staging format version not supported")
	}
	return h, nil
}

// indexEntrySize is the fixed on-disk index entry size (24 bytes):
// path_hash(8) + data_offset(8) + data_size(4) + path_length(2) + flags(2).
const indexEntrySize = 8 + 8 + 4 + 2 + 2

type indexEntry struct {
	PathHash   uint64
	DataOffset uint64
	DataSize   uint32
	PathLength uint16
	Flags      uint16
}

func encodeIndexEntries(entries []indexEntry) []byte {
	buf := make([]byte, len(entries)*indexEntrySize)
	for i, e := range entries {
		off := i * indexEntrySize
		binary.LittleEndian.PutUint64(buf[off:off+8], e.PathHash)
		binary.LittleEndian.PutUint64(buf[off+8:off+16], e.DataOffset)
		binary.LittleEndian.PutUint32(buf[off+16:off+20], e.DataSize)
		binary.LittleEndian.PutUint16(buf[off+20:off+22], e.PathLength)
		binary.LittleEndian.PutUint16(buf[off+22:off+24], e.Flags)
	}
	return buf
}

func decodeIndexEntries(r io.Reader, count uint64) ([]indexEntry, error) {
	entries := make([]indexEntry, count)
	buf := make([]byte, indexEntrySize)
	for i := range entries {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, digstoreerr.Wrap(digstoreerr.StoreCorrupted, err, "reading staging index")
		}
		entries[i] = indexEntry{
			PathHash:   binary.LittleEndian.Uint64(buf[0:8]),
			DataOffset: binary.LittleEndian.Uint64(buf[8:16]),
			DataSize:   binary.LittleEndian.Uint32(buf[16:20]),
			PathLength: binary.LittleEndian.Uint16(buf[20:22]),
			Flags:      binary.LittleEndian.Uint16(buf[22:24]),
		}
	}
	return entries, nil
}
