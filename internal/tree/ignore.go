package tree

import (
	"path/filepath"
	"strings"
)

// SetIgnore sets glob patterns matched against each path segment when
// collecting files for a directory relay.
func (b *Builder) SetIgnore(patterns []string) {
	b.ignore = patterns
}

func shouldIgnore(rel string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	for _, part := range strings.Split(rel, "/") {
		for _, pattern := range patterns {
			if matched, err := filepath.Match(pattern, part); err == nil && matched {
				return true
			}
		}
	}

	return false
}
