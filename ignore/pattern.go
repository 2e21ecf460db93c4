// Package ignore implements the hierarchical digignore rule engine used
// only by the add pipeline: .gitignore-compatible patterns (negation with
// "!", directory anchors with a trailing "/", "**" at any depth), loaded
// per-directory and applied root-to-leaf.
package ignore

import (
	"path"
	"strings"
)

// PatternType distinguishes a normal ignore rule from a negation ("!") rule.
type PatternType int

const (
	PatternIgnore PatternType = iota
	PatternInclude
)

// CompiledPattern is one parsed, ready-to-match line from a .digignore file.
type CompiledPattern struct {
	Original      string
	Glob          string
	Type          PatternType
	Anchored      bool
	DirectoryOnly bool
}

// ParseLines compiles every non-comment, non-blank line of a .digignore
// file's content.
func ParseLines(content string) []CompiledPattern {
	var patterns []CompiledPattern
	for _, line := range strings.Split(content, "\n") {
		if p, ok := parseLine(line); ok {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

func parseLine(line string) (CompiledPattern, bool) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return CompiledPattern{}, false
	}

	ptype := PatternIgnore
	body := line
	if strings.HasPrefix(line, "!") {
		ptype = PatternInclude
		body = line[1:]
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return CompiledPattern{}, false
	}

	directoryOnly := false
	if strings.HasSuffix(body, "/") {
		directoryOnly = true
		body = body[:len(body)-1]
	}

	anchored := strings.Contains(body, "/") || strings.HasPrefix(body, "**/")
	glob := normalizeGlob(body, anchored)
	glob = strings.ReplaceAll(glob, "\\", "/")

	return CompiledPattern{
		Original:      line,
		Glob:          glob,
		Type:          ptype,
		Anchored:      anchored,
		DirectoryOnly: directoryOnly,
	}, true
}

func normalizeGlob(pattern string, anchored bool) string {
	switch {
	case strings.HasPrefix(pattern, "**/"):
		rest := pattern[len("**/"):]
		if rest == "" {
			return "**"
		}
		return "**/" + rest
	case strings.Contains(pattern, "/**/"), strings.HasSuffix(pattern, "/**"):
		return pattern
	case !anchored && !strings.HasPrefix(pattern, "*"):
		return "**/" + pattern
	default:
		return pattern
	}
}

// Matches reports whether p applies to relPath (forward-slash, relative to
// the .digignore's own directory).
func (p CompiledPattern) Matches(relPath string, isDir bool) bool {
	if p.DirectoryOnly && !isDir {
		return false
	}
	if globMatch(p.Glob, relPath) {
		return true
	}
	if p.Anchored {
		return false
	}

	base := path.Base(relPath)
	if globMatch(p.Glob, base) {
		return true
	}
	for _, seg := range strings.Split(relPath, "/") {
		if globMatch(p.Glob, seg) {
			return true
		}
	}
	return false
}

// globMatch implements the small subset of gitignore glob syntax digignore
// patterns use: "**" matching any number of path segments (including
// zero), plus the shell-style "*"/"?"/"[...]" that path.Match already
// handles within a single segment.
func globMatch(glob, name string) bool {
	if !strings.Contains(glob, "**") {
		ok, err := path.Match(glob, name)
		return err == nil && ok
	}
	return doubleStarMatch(strings.Split(glob, "/"), strings.Split(name, "/"))
}

func doubleStarMatch(globParts, nameParts []string) bool {
	if len(globParts) == 0 {
		return len(nameParts) == 0
	}
	if globParts[0] == "**" {
		if doubleStarMatch(globParts[1:], nameParts) {
			return true
		}
		if len(nameParts) == 0 {
			return false
		}
		return doubleStarMatch(globParts, nameParts[1:])
	}
	if len(nameParts) == 0 {
		return false
	}
	ok, err := path.Match(globParts[0], nameParts[0])
	if err != nil || !ok {
		return false
	}
	return doubleStarMatch(globParts[1:], nameParts[1:])
}
