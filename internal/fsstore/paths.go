// Package fsstore provides small filesystem primitives — atomic JSON
// writes, flock-guarded critical sections, and a JSON index keyed by an
// arbitrary string — that takopi's router builds its last-known-resume
// cache on top of (see internal/router's LastResumeCache).
package fsstore

import (
	"fmt"
	"path/filepath"
	"strings"
)

func normalizePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	return filepath.Clean(path), nil
}
