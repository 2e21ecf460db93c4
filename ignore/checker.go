package ignore

import (
	"os"
	"path/filepath"
	"strings"
)

const DigignoreFilename = ".digignore"

// Result is the outcome of checking one path, distinguishing a plain
// inclusion from one reached via an explicit negation pattern so callers
// can log why a file that looked ignorable was kept.
type Result struct {
	Ignored         bool
	Reason          string
	ByNegation      bool
}

var Included = Result{}

// Checker loads every .digignore under a repository root once and answers
// is-ignored queries against the whole tree, applying parsers from root to
// leaf so a nested .digignore can override (or be overridden by) its
// ancestors.
type Checker struct {
	root    string
	byDir   map[string][]CompiledPattern
}

// NewChecker walks root collecting every .digignore file it finds.
func NewChecker(root string) (*Checker, error) {
	c := &Checker{root: filepath.Clean(root), byDir: map[string][]CompiledPattern{}}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads every .digignore under the checker's root.
func (c *Checker) Reload() error {
	c.byDir = map[string][]CompiledPattern{}
	return filepath.Walk(c.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() || filepath.Base(p) != DigignoreFilename {
			return nil
		}
		content, err := os.ReadFile(p)
		if err != nil {
			return nil
		}
		dir := filepath.Dir(p)
		c.byDir[dir] = ParseLines(string(content))
		return nil
	})
}

// HasIgnoreFiles reports whether any .digignore was found.
func (c *Checker) HasIgnoreFiles() bool { return len(c.byDir) > 0 }

// IsIgnored checks a path (relative to root, forward-slash) against every
// applicable .digignore from root down to the file's own directory, last
// matching pattern wins.
func (c *Checker) IsIgnored(relPath string, isDir bool) Result {
	if len(c.byDir) == 0 {
		return Included
	}
	absPath := filepath.Join(c.root, filepath.FromSlash(relPath))

	dirs := c.applicableDirs(filepath.Dir(absPath))

	result := Included
	sawIgnore := false
	for _, dir := range dirs {
		patterns, ok := c.byDir[dir]
		if !ok {
			continue
		}
		rel := relativeTo(dir, absPath)
		for i := len(patterns) - 1; i >= 0; i-- {
			p := patterns[i]
			if p.Matches(rel, isDir) {
				switch p.Type {
				case PatternIgnore:
					result = Result{Ignored: true, Reason: p.Original}
					sawIgnore = true
				case PatternInclude:
					if sawIgnore {
						result = Result{Ignored: false, Reason: p.Original, ByNegation: true}
					} else {
						result = Included
					}
				}
				break
			}
		}
	}
	return result
}

// applicableDirs walks from the checker root down to dir, returned in
// root-to-leaf order, including every directory on the way; IsIgnored skips
// the ones that hold no loaded .digignore.
func (c *Checker) applicableDirs(dir string) []string {
	var chain []string
	for {
		chain = append(chain, dir)
		if dir == c.root || dir == filepath.Dir(dir) {
			break
		}
		dir = filepath.Dir(dir)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func relativeTo(base, target string) string {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		rel = target
	}
	return filepath.ToSlash(rel)
}

// Stats mirrors the original's (total_parsers, total_patterns) diagnostic.
func (c *Checker) Stats() (dirs, patterns int) {
	dirs = len(c.byDir)
	for _, ps := range c.byDir {
		patterns += len(ps)
	}
	return
}

// normalizePathSeparators converts p to forward slashes and replaces each
// "//" with "/".
func normalizePathSeparators(p string) string {
	return strings.ReplaceAll(filepath.ToSlash(p), "//", "/")
}
