package staging

import (
	"path/filepath"
	"testing"

	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/stretchr/testify/require"
)

func testArea(t *testing.T) *Area {
	t.Helper()
	a := New(filepath.Join(t.TempDir(), "staging.bin"))
	require.NoError(t, a.Load())
	return a
}

func sampleFile(path string, n byte) StagedFile {
	return StagedFile{
		Path: path,
		Hash: types.Of([]byte{n}),
		Size: 128,
		ChunkRefs: []types.ChunkRef{
			{Hash: types.Of([]byte{n, 1}), OffsetInFile: 0, Size: 64},
			{Hash: types.Of([]byte{n, 2}), OffsetInFile: 64, Size: 64},
		},
	}
}

func TestFreshAreaIsEmpty(t *testing.T) {
	a := testArea(t)
	require.Equal(t, 0, a.Count())
	require.Empty(t, a.All())
	require.False(t, a.Contains("a.txt"))
}

func TestStageOneThenGet(t *testing.T) {
	a := testArea(t)
	sf := sampleFile("a.txt", 1)
	require.NoError(t, a.StageOne(sf))

	got, ok := a.Get("a.txt")
	require.True(t, ok)
	require.Equal(t, sf, got)
	require.True(t, a.Contains("a.txt"))
	require.Equal(t, 1, a.Count())
}

func TestStageOneReplacesExisting(t *testing.T) {
	a := testArea(t)
	require.NoError(t, a.StageOne(sampleFile("a.txt", 1)))
	replacement := sampleFile("a.txt", 2)
	require.NoError(t, a.StageOne(replacement))

	require.Equal(t, 1, a.Count())
	got, ok := a.Get("a.txt")
	require.True(t, ok)
	require.Equal(t, replacement, got)
}

func TestStageManyPreservesInsertionOrder(t *testing.T) {
	a := testArea(t)
	files := []StagedFile{sampleFile("a.txt", 1), sampleFile("b.txt", 2), sampleFile("c.txt", 3)}
	require.NoError(t, a.StageMany(files))

	all := a.All()
	require.Len(t, all, 3)
	require.Equal(t, "a.txt", all[0].Path)
	require.Equal(t, "b.txt", all[1].Path)
	require.Equal(t, "c.txt", all[2].Path)
}

func TestClearEmptiesArea(t *testing.T) {
	a := testArea(t)
	require.NoError(t, a.StageMany([]StagedFile{sampleFile("a.txt", 1), sampleFile("b.txt", 2)}))
	require.NoError(t, a.Clear())
	require.Equal(t, 0, a.Count())
	require.False(t, a.Contains("a.txt"))
}

func TestReloadPersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staging.bin")
	a1 := New(path)
	require.NoError(t, a1.Load())
	require.NoError(t, a1.StageMany([]StagedFile{sampleFile("a.txt", 1), sampleFile("b.txt", 2)}))

	a2 := New(path)
	require.NoError(t, a2.Load())
	require.Equal(t, 2, a2.Count())
	got, ok := a2.Get("b.txt")
	require.True(t, ok)
	require.Equal(t, sampleFile("b.txt", 2), got)
}

func TestFlushIsIdempotent(t *testing.T) {
	a := testArea(t)
	require.NoError(t, a.StageOne(sampleFile("a.txt", 1)))
	require.NoError(t, a.Flush())
	require.NoError(t, a.Flush())
	require.Equal(t, 1, a.Count())
}

func TestStagedFileWithMtimeRoundTrips(t *testing.T) {
	a := testArea(t)
	sf := sampleFile("a.txt", 1)
	sf.HasMtime = true
	sf.Mtime = 1700000000
	require.NoError(t, a.StageOne(sf))

	got, ok := a.Get("a.txt")
	require.True(t, ok)
	require.True(t, got.HasMtime)
	require.Equal(t, int64(1700000000), got.Mtime)
}
