package ignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseBasicPatterns(t *testing.T) {
	content := "\n# comment\n*.tmp\nbuild/\n!important.tmp\n**/cache/\nnode_modules/\n"
	patterns := ParseLines(content)
	require.Len(t, patterns, 5)
}

func TestCompiledPatternBasename(t *testing.T) {
	p, ok := parseLine("*.tmp")
	require.True(t, ok)
	require.True(t, p.Matches("test.tmp", false))
	require.False(t, p.Matches("test.txt", false))
}

func TestCompiledPatternDirectoryOnly(t *testing.T) {
	p, ok := parseLine("build/")
	require.True(t, ok)
	require.True(t, p.Matches("build", true))
	require.False(t, p.Matches("build", false))
}

func TestCompiledPatternDoubleStar(t *testing.T) {
	p, ok := parseLine("**/node_modules/")
	require.True(t, ok)
	require.True(t, p.Matches("node_modules", true))
	require.True(t, p.Matches("src/node_modules", true))
	require.True(t, p.Matches("deep/nested/node_modules", true))
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCheckerHierarchicalIgnore(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".digignore"), "*.tmp\n!important.tmp\n")
	writeFile(t, filepath.Join(root, "nested", ".digignore"), "*.log\n!debug.log\n")

	c, err := NewChecker(root)
	require.NoError(t, err)
	require.True(t, c.HasIgnoreFiles())

	require.True(t, c.IsIgnored("test.tmp", false).Ignored)
	require.False(t, c.IsIgnored("important.tmp", false).Ignored)
	require.True(t, c.IsIgnored("nested/app.log", false).Ignored)
	require.False(t, c.IsIgnored("nested/debug.log", false).Ignored)
	require.True(t, c.IsIgnored("nested/temp.tmp", false).Ignored)
}

func TestCheckerNoIgnoreFiles(t *testing.T) {
	root := t.TempDir()
	c, err := NewChecker(root)
	require.NoError(t, err)
	require.False(t, c.HasIgnoreFiles())
	require.Equal(t, Included, c.IsIgnored("any_file.txt", false))
}

func TestCheckerReload(t *testing.T) {
	root := t.TempDir()
	c, err := NewChecker(root)
	require.NoError(t, err)
	require.False(t, c.HasIgnoreFiles())

	writeFile(t, filepath.Join(root, ".digignore"), "*.tmp\n")
	require.NoError(t, c.Reload())
	require.True(t, c.HasIgnoreFiles())
	require.True(t, c.IsIgnored("test.tmp", false).Ignored)
}

func TestCheckerStats(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".digignore"), "*.tmp\nbuild/\n")
	c, err := NewChecker(root)
	require.NoError(t, err)

	dirs, patterns := c.Stats()
	require.Equal(t, 1, dirs)
	require.Equal(t, 2, patterns)
}
