package source

import (
	"path"
	"strings"
)

// DefaultIgnorePatterns name platform metadata and template files that never
// become resources. They are always applied regardless of config.
var DefaultIgnorePatterns = []string{
	".*",
	"desktop.ini",
	"thumbs.db",
	"__MACOSX",
	"~$*",
	"instructions.txt",
	"instructions.pdf",
}

// ignorePattern is a parsed ignore pattern with its matching strategy.
type ignorePattern struct {
	pattern   string
	matchPath bool // true = match against relative path; false = match against basename only
}

// IgnoreMatcher checks source-relative paths against a set of ignore patterns.
// Patterns without '/' match against the basename only. Patterns with '/'
// match against the full relative path from the content root. Matching is
// case-insensitive because content trees come from case-insensitive systems.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher creates an IgnoreMatcher from DefaultIgnorePatterns plus
// extra. Blank lines and lines starting with '#' are skipped.
func NewIgnoreMatcher(extra []string) *IgnoreMatcher {
	raws := append(append([]string{}, DefaultIgnorePatterns...), extra...)

	var patterns []ignorePattern
	for _, raw := range raws {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		raw = strings.ToLower(strings.Trim(raw, "/"))
		patterns = append(patterns, ignorePattern{
			pattern:   raw,
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &IgnoreMatcher{patterns: patterns}
}

// Match reports whether the slash-separated relative path should be ignored.
func (m *IgnoreMatcher) Match(relativePath string) bool {
	normalized := strings.ToLower(strings.Trim(relativePath, "/"))
	basename := path.Base(normalized)

	for _, p := range m.patterns {
		target := basename
		if p.matchPath {
			target = normalized
		}
		matched, err := path.Match(p.pattern, target)
		if err != nil {
			// Bad pattern: skip rather than crash.
			continue
		}
		if matched {
			return true
		}
	}
	return false
}
