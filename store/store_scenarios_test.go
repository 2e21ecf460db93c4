package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/DIG-Network/digstore-sub000/digstoreerr"
	"github.com/DIG-Network/digstore-sub000/proof"
	"github.com/DIG-Network/digstore-sub000/types"
	"github.com/DIG-Network/digstore-sub000/urn"
	"github.com/stretchr/testify/require"
)

func newTestProject(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	project := t.TempDir()
	return project
}

func writeProjectFile(t *testing.T, project, relPath string, content []byte) {
	t.Helper()
	full := filepath.Join(project, relPath)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, content, 0o644))
}

// S1 — Init and first commit.
func TestScenarioInitAndFirstCommit(t *testing.T) {
	project := newTestProject(t)
	writeProjectFile(t, project, "hello.txt", []byte("Hello\n"))

	s, err := Init(project, InitOptions{})
	require.NoError(t, err)
	defer s.Close()

	report, err := s.Add([]string{"hello.txt"}, AddOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, s.staging.Count())
	require.Equal(t, []string{"hello.txt"}, report.Files)

	root, err := s.Commit(CommitOptions{Message: "msg", Author: "A"})
	require.NoError(t, err)

	zero, err := loadLayerZero(s.archive)
	require.NoError(t, err)
	require.Len(t, zero.RootHistory, 1)
	require.Equal(t, root, zero.RootHistory[0].RootHash)
	require.Equal(t, uint64(1), zero.RootHistory[0].Generation)
	require.Equal(t, uint64(2), zero.RootHistory[0].LayerCount) // Layer 0 + Full layer 1

	data, err := s.GetFile("hello.txt", nil)
	require.NoError(t, err)
	require.Equal(t, []byte("Hello\n"), data)

	want := sha256.Sum256([]byte("Hello\n"))
	entry, err := s.findFileLocked("hello.txt", nil)
	require.NoError(t, err)
	require.Equal(t, types.Hash(want), entry.Hash)
	require.Equal(t, 0, s.staging.Count())
}

// S1b — commit message/author survive an encode/decode round trip via Log.
func TestScenarioLogRoundTripsMetadata(t *testing.T) {
	project := newTestProject(t)
	writeProjectFile(t, project, "a.txt", []byte("aaa"))
	writeProjectFile(t, project, "b.txt", []byte("bbb"))

	s, err := Init(project, InitOptions{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Add([]string{"a.txt"}, AddOptions{})
	require.NoError(t, err)
	root1, err := s.Commit(CommitOptions{Message: "first", Author: "alice"})
	require.NoError(t, err)

	_, err = s.Add([]string{"b.txt"}, AddOptions{})
	require.NoError(t, err)
	root2, err := s.Commit(CommitOptions{Message: "second", Author: "bob"})
	require.NoError(t, err)

	entries, err := s.Log()
	require.NoError(t, err)
	require.Len(t, entries, 2)

	require.Equal(t, root2, entries[0].RootHash)
	require.Equal(t, "second", entries[0].Message)
	require.Equal(t, "bob", entries[0].Author)

	require.Equal(t, root1, entries[1].RootHash)
	require.Equal(t, "first", entries[1].Message)
	require.Equal(t, "alice", entries[1].Author)
}

// S2 — dedup across files with identical content.
func TestScenarioDedupAcrossFiles(t *testing.T) {
	project := newTestProject(t)
	content := bytes.Repeat([]byte{0x00}, 1024*1024)
	var paths []string
	for i := 0; i < 10; i++ {
		p := filepath.Join("data", "f"+string(rune('0'+i))+".bin")
		writeProjectFile(t, project, p, content)
		paths = append(paths, p)
	}

	s, err := Init(project, InitOptions{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Add(paths, AddOptions{})
	require.NoError(t, err)
	_, err = s.Commit(CommitOptions{Message: "m", Author: "A"})
	require.NoError(t, err)

	chunkHashes := map[types.Hash]bool{}
	for h := range s.knownChunks {
		chunkHashes[h] = true
	}
	require.Len(t, chunkHashes, 1)
}

// S3 — byte range retrieval over a large file.
func TestScenarioByteRangeRetrieval(t *testing.T) {
	project := newTestProject(t)
	data := make([]byte, 2*1024*1024)
	rng := rand.New(rand.NewSource(42))
	rng.Read(data)
	writeProjectFile(t, project, "big.bin", data)

	s, err := Init(project, InitOptions{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Add([]string{"big.bin"}, AddOptions{})
	require.NoError(t, err)
	_, err = s.Commit(CommitOptions{Message: "m", Author: "A"})
	require.NoError(t, err)

	got, err := s.GetFileRange("big.bin", 1_000_000, 1_000_015, nil)
	require.NoError(t, err)
	require.Equal(t, data[1_000_000:1_000_016], got)
}

// S4 — proof verify, flipped sibling fails.
func TestScenarioProofVerify(t *testing.T) {
	project := newTestProject(t)
	writeProjectFile(t, project, "f1.txt", []byte("one"))
	writeProjectFile(t, project, "f2.txt", []byte("two"))
	writeProjectFile(t, project, "f3.txt", []byte("three"))

	s, err := Init(project, InitOptions{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Add([]string{"f1.txt", "f2.txt", "f3.txt"}, AddOptions{})
	require.NoError(t, err)
	root, err := s.Commit(CommitOptions{Message: "m", Author: "A"})
	require.NoError(t, err)

	p, err := s.ProveFile("f2.txt", &root)
	require.NoError(t, err)
	require.True(t, proof.Verify(p, types.Of([]byte("two")), root))

	p.Siblings[0].Hash[0] ^= 0xFF
	require.False(t, proof.Verify(p, types.Of([]byte("two")), root))
}

// S5 — zero-knowledge URN retrieval for an unknown store.
func TestScenarioZeroKnowledgeUnknownStore(t *testing.T) {
	_ = newTestProject(t) // isolates $HOME so ArchivePath resolves under a temp dir

	u, err := urn.Parse("urn:dig:chia:" + hexOfZero() + "/anything.txt")
	require.NoError(t, err)

	data1, err := RetrieveByURN(u)
	require.NoError(t, err)
	data2, err := RetrieveByURN(u)
	require.NoError(t, err)
	require.Equal(t, data1, data2)

	u2, err := urn.Parse("urn:dig:chia:" + hexOfZero() + "/other.txt")
	require.NoError(t, err)
	data3, err := RetrieveByURN(u2)
	require.NoError(t, err)
	require.NotEqual(t, data1, data3)
}

func hexOfZero() string {
	return hex.EncodeToString(make([]byte, 32))
}

// S6 — archive size proof.
func TestScenarioArchiveSizeProof(t *testing.T) {
	project := newTestProject(t)
	writeProjectFile(t, project, "a.txt", []byte("aaaa"))
	writeProjectFile(t, project, "b.txt", []byte("bbbb"))

	s, err := Init(project, InitOptions{})
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Add([]string{"a.txt", "b.txt"}, AddOptions{})
	require.NoError(t, err)
	root, err := s.Commit(CommitOptions{Message: "m", Author: "A"})
	require.NoError(t, err)

	sp, err := s.ProveArchiveSize(&root)
	require.NoError(t, err)

	hexProof, err := sp.CompressedHex()
	require.NoError(t, err)

	parsed, err := proof.ParseCompressedHex(hexProof)
	require.NoError(t, err)

	require.True(t, proof.VerifyArchiveSize(parsed, s.StoreId, root, sp.ClaimedSize))
	require.False(t, proof.VerifyArchiveSize(parsed, s.StoreId, root, sp.ClaimedSize+1))
}

func TestOpenMissingArchiveReturnsStoreNotFound(t *testing.T) {
	project := newTestProject(t)
	_, err := Open(project)
	require.Error(t, err)
	kind, ok := digstoreerr.KindOf(err)
	require.True(t, ok)
	require.Equal(t, digstoreerr.StoreNotFound, kind)
}
