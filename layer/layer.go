package layer

import "github.com/DIG-Network/digstore-sub000/types"

// Metadata is a layer's commit metadata block.
type Metadata struct {
	Message    string
	Author     string
	Generation uint64
}

// Layer is the writer-side, fully materialized representation used by the
// commit pipeline: Chunks carry their final (possibly encrypted) bytes.
type Layer struct {
	Header   Header
	Files    []types.FileEntry
	Chunks   []types.Chunk
	Metadata Metadata
}

// ChunkIndexEntry locates one chunk's bytes within the chunk data region of
// an encoded layer.
type ChunkIndexEntry struct {
	Hash         types.Hash
	OffsetInLayer uint64
	Size         uint32
}
