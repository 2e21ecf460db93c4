package archive

import (
	"path/filepath"
	"testing"

	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/stretchr/testify/require"
)

func openTestArchive(t *testing.T) (*Archive, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.dig")
	a, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, path
}

func TestOpenFreshArchiveIsEmpty(t *testing.T) {
	a, _ := openTestArchive(t)
	require.True(t, a.IsEmpty())
	require.Empty(t, a.ListLayers())
}

func TestOverwriteLayerZeroThenAppendFullLayer(t *testing.T) {
	a, _ := openTestArchive(t)

	require.NoError(t, a.OverwriteLayerZero([]byte("layer-zero-v1")))
	require.True(t, a.HasLayer(types.Zero))
	require.False(t, a.IsEmpty())

	layerHash := types.Of([]byte("full-layer-1"))
	_, err := a.AppendLayer(layerHash, []byte("full-layer-1-bytes"))
	require.NoError(t, err)
	require.True(t, a.HasLayer(layerHash))

	data, err := a.GetLayerData(layerHash)
	require.NoError(t, err)
	require.Equal(t, []byte("full-layer-1-bytes"), data)

	layers := a.ListLayers()
	require.Len(t, layers, 2)
}

func TestOverwriteLayerZeroReplacesPreviousVersion(t *testing.T) {
	a, _ := openTestArchive(t)

	require.NoError(t, a.OverwriteLayerZero([]byte("v1")))
	require.NoError(t, a.OverwriteLayerZero([]byte("v2-longer-body")))

	data, err := a.GetLayerData(types.Zero)
	require.NoError(t, err)
	require.Equal(t, []byte("v2-longer-body"), data)

	count := 0
	for _, e := range a.ListLayers() {
		if e.LayerHash == types.Zero {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestGetLayerDataMissingReturnsLayerNotFound(t *testing.T) {
	a, _ := openTestArchive(t)
	_, err := a.GetLayerData(types.Of([]byte("nope")))
	require.Error(t, err)
}

func TestReopenArchivePreservesLayers(t *testing.T) {
	a, path := openTestArchive(t)
	require.NoError(t, a.OverwriteLayerZero([]byte("v1")))
	h := types.Of([]byte("layer-a"))
	_, err := a.AppendLayer(h, []byte("layer-a-bytes"))
	require.NoError(t, err)
	require.NoError(t, a.Close())

	a2, err := Open(path)
	require.NoError(t, err)
	defer a2.Close()

	require.True(t, a2.HasLayer(types.Zero))
	require.True(t, a2.HasLayer(h))
	data, err := a2.GetLayerData(h)
	require.NoError(t, err)
	require.Equal(t, []byte("layer-a-bytes"), data)
}

func TestGetCachedChunkHitsAfterFirstLoad(t *testing.T) {
	a, _ := openTestArchive(t)
	h := types.Of([]byte("chunk-1"))
	loads := 0
	load := func() ([]byte, error) {
		loads++
		return []byte("chunk-bytes"), nil
	}

	d1, err := a.GetCachedChunk(h, load)
	require.NoError(t, err)
	d2, err := a.GetCachedChunk(h, load)
	require.NoError(t, err)

	require.Equal(t, d1, d2)
	require.Equal(t, 1, loads)
	require.Equal(t, uint64(1), a.Stats().CacheHits)
	require.Equal(t, uint64(1), a.Stats().CacheMisses)
}
