// Package workspace manages per-run temporary directories for candidate and
// checker artifacts.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Workspace is an exclusively-owned temporary directory. It is never reused
// across runs and must be closed when judging finishes, success or failure.
type Workspace struct {
	dir string
}

// New allocates a fresh directory under root.
func New(root, label string) (*Workspace, error) {
	if root == "" {
		root = os.TempDir()
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	dir := filepath.Join(root, fmt.Sprintf("%s-%s", label, uuid.NewString()))
	if err := os.Mkdir(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the workspace directory path.
func (w *Workspace) Dir() string {
	return w.dir
}

// Path joins name onto the workspace directory.
func (w *Workspace) Path(name string) string {
	return filepath.Join(w.dir, name)
}

// WriteFile stores data under the workspace and returns the full path.
func (w *Workspace) WriteFile(name string, data []byte, perm os.FileMode) (string, error) {
	path := w.Path(name)
	if err := os.WriteFile(path, data, perm); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

// Close removes the directory and everything in it.
func (w *Workspace) Close() error {
	if w == nil || w.dir == "" {
		return nil
	}
	return os.RemoveAll(w.dir)
}
