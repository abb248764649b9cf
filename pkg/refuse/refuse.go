// Package refuse matches scanned paths against a collection's refuse
// list — patterns naming files or directories the scan/compare dialogue
// must silently skip (spec §4.4 "Refuse patterns", scenario S6).
//
// Matching is delegated to moby/patternmatcher, the .dockerignore-style
// gitignore-subset matcher, rather than a hand-rolled fnmatch: a pattern
// like "Attic" must refuse both the directory itself and everything
// under it, which is exactly MatchesOrParentMatches's semantics.
package refuse

import (
	"fmt"
	"path"
	"strings"

	"github.com/moby/patternmatcher"
)

// List matches scanned paths against a configured set of refuse
// patterns.
type List struct {
	patterns []string
	matcher  *patternmatcher.PatternMatcher
}

// New compiles patterns into a List. An empty pattern set matches
// nothing (spec default: refuse list absent means refuse nothing).
func New(patterns []string) (*List, error) {
	normalized := make([]string, 0, len(patterns))
	for _, p := range patterns {
		normalized = append(normalized, normalizePattern(p))
	}
	m, err := patternmatcher.New(normalized)
	if err != nil {
		return nil, fmt.Errorf("refuse: compile patterns: %w", err)
	}
	return &List{patterns: normalized, matcher: m}, nil
}

// normalizePattern adapts cvsync's rcs(1)-derived refuse syntax (a bare
// directory name like "Attic/" means "this directory and everything
// under it") to patternmatcher's gitignore-subset syntax, which expects
// the trailing slash stripped. patternmatcher anchors a pattern at the
// collection root, so a pattern without a '/' is prefixed with "**/" and
// then matches a name at any depth.
func normalizePattern(p string) string {
	p = strings.TrimSuffix(p, "/*")
	p = strings.TrimSuffix(p, "/")
	if p != "" && !strings.Contains(p, "/") && !strings.HasPrefix(p, "!") {
		p = "**/" + p
	}
	return p
}

// Refuses reports whether relPath (slash-separated, relative to the
// collection root) matches the refuse list, either directly or because
// one of its parent directories does.
func (l *List) Refuses(relPath string) (bool, error) {
	if l == nil || l.matcher == nil || len(l.patterns) == 0 {
		return false, nil
	}
	clean := path.Clean(relPath)
	matched, err := l.matcher.MatchesOrParentMatches(clean)
	if err != nil {
		return false, fmt.Errorf("refuse: match %q: %w", relPath, err)
	}
	return matched, nil
}

// Patterns returns the normalized pattern list, primarily for logging
// and diagnostics.
func (l *List) Patterns() []string {
	if l == nil {
		return nil
	}
	return append([]string(nil), l.patterns...)
}
