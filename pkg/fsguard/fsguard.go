// Package fsguard decides whether a local media path may be read.
//
// Paths are canonicalized (absolute, symlinks resolved) before being
// compared against the configured roots, so a symlink pointing outside an
// allowed directory is refused. Any resolution error refuses the path.
package fsguard

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	// ErrNotAllowed means the path resolved outside every allowed root.
	ErrNotAllowed = errors.New("path is outside allowed directories")
	// ErrNoRoots means no allowed roots are configured.
	ErrNoRoots = errors.New("no allowed directories configured")
)

// Guard holds the canonical set of allowed root directories.
type Guard struct {
	mu    sync.RWMutex
	roots []string
}

// New creates a guard for the given roots. Roots that cannot be resolved are
// skipped; an empty guard refuses everything.
func New(roots []string) *Guard {
	g := &Guard{}
	g.SetRoots(roots)
	return g
}

// SetRoots replaces the allowed roots.
func (g *Guard) SetRoots(roots []string) {
	canonical := make([]string, 0, len(roots))
	for _, root := range roots {
		if root = strings.TrimSpace(root); root == "" {
			continue
		}
		resolved, err := canonicalize(root)
		if err != nil {
			continue
		}
		canonical = append(canonical, resolved)
	}

	g.mu.Lock()
	g.roots = canonical
	g.mu.Unlock()
}

// Roots returns a copy of the canonical roots.
func (g *Guard) Roots() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.roots...)
}

// Resolve returns the canonical form of path if it lies inside an allowed
// root and names an existing regular file.
func (g *Guard) Resolve(path string) (string, error) {
	if strings.Contains(path, "\\") {
		return "", fmt.Errorf("path contains backslash: %s", path)
	}

	roots := g.Roots()
	if len(roots) == 0 {
		return "", ErrNoRoots
	}

	resolved, err := canonicalize(path)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", err
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("not a regular file: %s", resolved)
	}

	for _, root := range roots {
		if within(root, resolved) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotAllowed, resolved)
}

// Acceptable reports whether path may be read.
func (g *Guard) Acceptable(path string) bool {
	_, err := g.Resolve(path)
	return err == nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path: %w", err)
	}
	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}
