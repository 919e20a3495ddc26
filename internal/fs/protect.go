package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dupx-go/internal/dupx"
)

// protectPattern is a parsed protect pattern with its matching strategy.
type protectPattern struct {
	pattern   string
	matchPath bool // true = match against the path and its parent directories; false = basename only
}

// ProtectMatcher reports paths that must never be deleted or re-linked.
// Patterns without '/' match against the file's basename only.
// Patterns with '/' match against the absolute path or any of its parent
// directories, so "/etc" protects everything below /etc.
type ProtectMatcher struct {
	patterns []protectPattern
}

// NewProtectMatcher creates a ProtectMatcher from raw pattern strings.
// Blank lines and lines starting with '#' are skipped.
func NewProtectMatcher(rawPatterns []string) *ProtectMatcher {
	var patterns []protectPattern
	for _, raw := range rawPatterns {
		raw = strings.TrimSpace(raw)
		if raw == "" || strings.HasPrefix(raw, "#") {
			continue
		}
		patterns = append(patterns, protectPattern{
			pattern:   filepath.Clean(raw),
			matchPath: strings.Contains(raw, "/"),
		})
	}
	return &ProtectMatcher{patterns: patterns}
}

// Match reports whether the given absolute path is protected.
func (m *ProtectMatcher) Match(path string) bool {
	if len(m.patterns) == 0 {
		return false
	}

	path = filepath.Clean(path)
	basename := filepath.Base(path)

	for _, p := range m.patterns {
		if !p.matchPath {
			if matched, err := filepath.Match(p.pattern, basename); err == nil && matched {
				return true
			}
			continue
		}
		for candidate := path; ; candidate = filepath.Dir(candidate) {
			// Bad patterns never match.
			if matched, err := filepath.Match(p.pattern, candidate); err == nil && matched {
				return true
			}
			if parent := filepath.Dir(candidate); parent == candidate {
				break
			}
		}
	}
	return false
}

// ParseProtectFile reads a protect file and returns the raw pattern strings.
// Returns nil and no error if the file does not exist.
func ParseProtectFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening protect file: %w", err)
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		patterns = append(patterns, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading protect file: %w", err)
	}
	return patterns, nil
}

// Compile-time check that ProtectMatcher implements dupx.PathMatcher interface
var _ dupx.PathMatcher = (*ProtectMatcher)(nil)
