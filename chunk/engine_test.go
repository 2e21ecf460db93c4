package chunk

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, SmallFilesConfig().Validate())
	require.NoError(t, LargeFilesConfig().Validate())

	bad := Config{MinSize: 2048, AvgSize: 1024, MaxSize: 4096}
	require.Error(t, bad.Validate())
}

func TestChunkEmptyData(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	chunks := e.ChunkBytes(nil)
	assert.Empty(t, chunks)
}

func TestChunkSmallDataSingleChunk(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	data := []byte("Hello, World! This is a small test file.")
	chunks := e.ChunkBytes(data)
	require.Len(t, chunks, 1)
	assert.Equal(t, uint64(0), chunks[0].OffsetInFile)
	assert.Equal(t, uint32(len(data)), chunks[0].Size)
	assert.Equal(t, types.Of(data), chunks[0].Hash)
	assert.Equal(t, data, chunks[0].Data)
}

func TestChunkDeterministic(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	data := bytes.Repeat([]byte{0x2a}, 2*1024*1024)

	c1 := e.ChunkBytes(data)
	c2 := e.ChunkBytes(data)
	require.Equal(t, len(c1), len(c2))
	for i := range c1 {
		assert.Equal(t, c1[i].Hash, c2[i].Hash)
		assert.Equal(t, c1[i].OffsetInFile, c2[i].OffsetInFile)
		assert.Equal(t, c1[i].Size, c2[i].Size)
	}
}

func TestChunkReconstructsOriginal(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	data := make([]byte, 3*1024*1024)
	for i := range data {
		data[i] = byte(i % 251)
	}
	chunks := e.ChunkBytes(data)
	require.NotEmpty(t, chunks)

	var rebuilt []byte
	for _, c := range chunks {
		assert.Equal(t, types.Of(c.Data), c.Hash)
		rebuilt = append(rebuilt, c.Data...)
	}
	assert.Equal(t, data, rebuilt)

	for i, c := range chunks {
		if i == len(chunks)-1 {
			assert.LessOrEqual(t, int(c.Size), e.cfg.MaxSize)
		} else {
			assert.GreaterOrEqual(t, int(c.Size), e.cfg.MinSize)
			assert.LessOrEqual(t, int(c.Size), e.cfg.MaxSize)
		}
	}
}

func TestChunkReaderMatchesChunkBytes(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	data := make([]byte, 6*1024*1024)
	for i := range data {
		data[i] = byte((i * 7) % 256)
	}

	viaBytes := e.ChunkBytes(data)
	viaReader, err := e.ChunkReader(bytes.NewReader(data))
	require.NoError(t, err)

	require.Equal(t, len(viaBytes), len(viaReader))
	for i := range viaBytes {
		assert.Equal(t, viaBytes[i].Hash, viaReader[i].Hash)
		assert.Equal(t, viaBytes[i].Size, viaReader[i].Size)
		assert.Equal(t, viaBytes[i].OffsetInFile, viaReader[i].OffsetInFile)
	}
}

func TestChunkReaderIndependentOfBufferSize(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	data := make([]byte, 5*1024*1024)
	for i := range data {
		data[i] = byte((i * 13) % 256)
	}

	full, err := e.ChunkReader(bytes.NewReader(data))
	require.NoError(t, err)

	tiny, err := e.ChunkReader(&slowReader{data: data, step: 17})
	require.NoError(t, err)

	require.Equal(t, len(full), len(tiny))
	for i := range full {
		assert.Equal(t, full[i].Hash, tiny[i].Hash)
	}
}

type slowReader struct {
	data []byte
	step int
}

func (s *slowReader) Read(p []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, io.EOF
	}
	n := s.step
	if n > len(p) {
		n = len(p)
	}
	if n > len(s.data) {
		n = len(s.data)
	}
	copy(p, s.data[:n])
	s.data = s.data[n:]
	return n, nil
}

func TestChunkFileSmallFastPath(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "small.txt")
	content := []byte("This is test content for file chunking.")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	result, err := e.ChunkFile(path)
	require.NoError(t, err)
	assert.Equal(t, SmallFile, result.Strategy)
	require.Len(t, result.Chunks, 1)
	assert.Equal(t, content, result.Chunks[0].Data)
}

func TestChunkFileMmapFastPath(t *testing.T) {
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	e.MmapThreshold = 1024 * 1024 // lower threshold so the test stays fast

	dir := t.TempDir()
	path := filepath.Join(dir, "big.bin")
	content := bytes.Repeat([]byte{0x7}, 3*1024*1024)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	result, err := e.ChunkFile(path)
	require.NoError(t, err)
	assert.Equal(t, FixedSizeMmap, result.Strategy)

	var rebuilt []byte
	for _, c := range result.Chunks {
		rebuilt = append(rebuilt, c.Data...)
	}
	assert.Equal(t, content, rebuilt)
}

func TestMaskLoweringIncreasesAverageSize(t *testing.T) {
	s, l := masks(1024 * 1024)
	assert.NotZero(t, s)
	assert.NotZero(t, l)
	assert.True(t, s > l || l == 0)
}
