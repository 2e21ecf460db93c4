package archive

import (
	"encoding/binary"
	"io"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
)

// IndexEntrySize is the fixed per-layer record size in the on-disk index.
const IndexEntrySize = 32 + 8 + 8 // layer_hash + data_offset + data_size

// IndexEntry locates one layer's raw bytes within the archive file.
type IndexEntry struct {
	LayerHash  types.Hash
	DataOffset uint64
	DataSize   uint64
}

func encodeIndex(entries []IndexEntry) []byte {
	buf := make([]byte, len(entries)*IndexEntrySize)
	for i, e := range entries {
		off := i * IndexEntrySize
		copy(buf[off:off+32], e.LayerHash[:])
		binary.LittleEndian.PutUint64(buf[off+32:off+40], e.DataOffset)
		binary.LittleEndian.PutUint64(buf[off+40:off+48], e.DataSize)
	}
	return buf
}

func decodeIndex(r io.Reader, count uint64) ([]IndexEntry, error) {
	entries := make([]IndexEntry, count)
	buf := make([]byte, IndexEntrySize)
	for i := range entries {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, digstoreerr.Wrap(digstoreerr.StoreCorrupted, err, "reading archive layer index")
		}
		var e IndexEntry
		copy(e.LayerHash[:], buf[0:32])
		e.DataOffset = binary.LittleEndian.Uint64(buf[32:40])
		e.DataSize = binary.LittleEndian.Uint64(buf[40:48])
		entries[i] = e
	}
	return entries, nil
}
