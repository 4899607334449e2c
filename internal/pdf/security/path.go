// Package security confines document paths and reads the permissions of encrypted PDFs.
package security

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for paths that resolve outside the configured directory
var ErrOutsideRoot = errors.New("path is outside configured directory")

// PathValidator confines paths to one root directory. Symlinks are followed before the check so a
// link inside the root cannot point outside it.
type PathValidator struct {
	root string
}

// NewPathValidator creates a validator for root. The directory does not have to exist yet.
func NewPathValidator(root string) (*PathValidator, error) {
	if root == "" {
		return nil, fmt.Errorf("configured directory cannot be empty")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve configured directory: %w", err)
	}
	return &PathValidator{root: filepath.Clean(abs)}, nil
}

// Root returns the absolute configured directory
func (v *PathValidator) Root() string {
	return v.root
}

// Resolve returns the absolute form of path. Relative paths are taken relative to the root.
// Paths that do not exist yet, such as export targets, are checked through their nearest existing
// parent.
func (v *PathValidator) Resolve(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return "", fmt.Errorf("path contains a NUL byte")
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(v.root, path)
	}
	abs := filepath.Clean(path)

	// nothing to escape from until the root exists
	if _, err := os.Stat(v.root); os.IsNotExist(err) {
		return abs, nil
	}

	realRoot := evalExisting(v.root)
	if !within(abs, v.root) && !within(abs, realRoot) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}
	if real := evalExisting(abs); !within(real, realRoot) && !within(real, v.root) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrOutsideRoot, path, real)
	}
	return abs, nil
}

// ValidatePath checks that path stays inside the root
func (v *PathValidator) ValidatePath(path string) error {
	_, err := v.Resolve(path)
	return err
}

// evalExisting resolves symlinks in the longest existing prefix of path and re-attaches the rest
func evalExisting(path string) string {
	var rest []string
	p := path
	for {
		if real, err := filepath.EvalSymlinks(p); err == nil {
			return filepath.Join(append([]string{real}, rest...)...)
		}
		parent := filepath.Dir(p)
		if parent == p {
			return path
		}
		rest = append([]string{filepath.Base(p)}, rest...)
		p = parent
	}
}

func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
