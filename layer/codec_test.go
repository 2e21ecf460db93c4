package layer

import (
	"testing"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestLayer(t *testing.T) *Layer {
	t.Helper()
	data1 := []byte("hello world")
	data2 := []byte("goodbye world")
	c1 := types.Chunk{Hash: types.Of(data1), Size: uint32(len(data1)), Data: data1}
	c2 := types.Chunk{Hash: types.Of(data2), Size: uint32(len(data2)), Data: data2}

	f1 := types.FileEntry{
		Path: "a.txt",
		Hash: types.Of(data1),
		Size: uint64(len(data1)),
		ChunkRefs: []types.ChunkRef{
			{Hash: c1.Hash, OffsetInFile: 0, Size: c1.Size},
		},
		Metadata: types.FileMetadata{Mode: 0o644, Mtime: 1000},
	}
	f2 := types.FileEntry{
		Path: "b.txt",
		Hash: types.Of(data2),
		Size: uint64(len(data2)),
		ChunkRefs: []types.ChunkRef{
			{Hash: c2.Hash, OffsetInFile: 0, Size: c2.Size},
		},
		Metadata: types.FileMetadata{Mode: 0o644, Mtime: 2000},
	}

	root := types.MerkleRoot([]types.Hash{f1.Hash, f2.Hash})

	return &Layer{
		Header: Header{
			LayerType:  types.LayerTypeFull,
			Generation: 1,
			ParentHash: types.Zero,
			Timestamp:  1234,
			MerkleRoot: root,
		},
		Files:  []types.FileEntry{f1, f2},
		Chunks: []types.Chunk{c1, c2},
		Metadata: Metadata{
			Message:    "initial commit",
			Author:     "tester",
			Generation: 1,
		},
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	l := buildTestLayer(t)
	encoded, err := Encode(l)
	require.NoError(t, err)

	decoded, err := Decode(encoded)
	require.NoError(t, err)

	require.Len(t, decoded.Files, 2)
	assert.Equal(t, "a.txt", decoded.Files[0].Path)
	assert.Equal(t, "b.txt", decoded.Files[1].Path)
	assert.Equal(t, l.Header.MerkleRoot, decoded.Header.MerkleRoot)
	assert.Equal(t, uint64(1), decoded.Header.Generation)
	assert.Equal(t, l.Metadata, decoded.Metadata)

	data, err := decoded.ChunkData(l.Chunks[0].Hash)
	require.NoError(t, err)
	assert.Equal(t, l.Chunks[0].Data, data)

	data2, err := decoded.ChunkData(l.Chunks[1].Hash)
	require.NoError(t, err)
	assert.Equal(t, l.Chunks[1].Data, data2)
}

func TestLayerHashIsDeterministic(t *testing.T) {
	l := buildTestLayer(t)
	e1, err := Encode(l)
	require.NoError(t, err)
	e2, err := Encode(l)
	require.NoError(t, err)
	require.Equal(t, e1, e2)

	d1, err := Decode(e1)
	require.NoError(t, err)
	assert.Equal(t, types.Of(e1), d1.Hash())
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	l := buildTestLayer(t)
	encoded, err := Encode(l)
	require.NoError(t, err)
	encoded[0] = 'X'

	_, err = Decode(encoded)
	require.Error(t, err)
	kind, ok := digstoreerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, digstoreerr.InvalidLayerFormat, kind)
}

func TestDecodeRejectsTamperedMerkleRoot(t *testing.T) {
	l := buildTestLayer(t)
	l.Header.MerkleRoot[0] ^= 0xFF
	encoded, err := Encode(l)
	require.NoError(t, err)

	_, err = Decode(encoded)
	require.Error(t, err)
	kind, ok := digstoreerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, digstoreerr.LayerVerificationFailed, kind)
}

func TestChunkDataNotFound(t *testing.T) {
	l := buildTestLayer(t)
	encoded, err := Encode(l)
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)

	_, err = decoded.ChunkData(types.Of([]byte("does not exist")))
	require.Error(t, err)
	kind, ok := digstoreerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, digstoreerr.ChunkNotFound, kind)
}

func TestHeaderSizeIs128(t *testing.T) {
	assert.Equal(t, 128, HeaderSize)
}
