package workspace

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AzPepoze/gdrive-bisync/internal/utils"
	"github.com/gofrs/flock"
)

// LockFileName lives in the synced root and is never synced
const LockFileName = ".bisync.lock"

var (
	ErrWorkspaceLocked = errors.New("workspace locked by another process")
)

// Workspace is the local root being synced
type Workspace struct {
	Root string

	flock *flock.Flock
}

func NewWorkspace(rootDir string) (*Workspace, error) {
	root, err := utils.ResolvePath(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", rootDir, err)
	}

	return &Workspace{
		Root:  root,
		flock: flock.New(filepath.Join(root, LockFileName)),
	}, nil
}

// Setup creates the root if needed and takes the single-instance lock
func (w *Workspace) Setup() error {
	if err := utils.EnsureDir(w.Root); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", w.Root, err)
	}

	if err := w.Lock(); err != nil {
		return err
	}

	slog.Info("workspace", "root", w.Root)
	return nil
}

func (w *Workspace) Lock() error {
	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock workspace: %w", err)
	}
	if !locked {
		return ErrWorkspaceLocked
	}
	return nil
}

func (w *Workspace) Unlock() error {
	// if this process hasn't locked the workspace, then don't delete the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock workspace: %w", err)
	}

	return os.Remove(w.flock.Path())
}

// AbsPath returns the absolute path of a slash-separated relative path
func (w *Workspace) AbsPath(relPath string) string {
	return filepath.Join(w.Root, filepath.FromSlash(relPath))
}

// RelPath returns the normalized relative path of an absolute path inside the root
func (w *Workspace) RelPath(absPath string) (string, error) {
	relPath, err := filepath.Rel(w.Root, absPath)
	if err != nil {
		return "", err
	}
	return NormPath(relPath), nil
}
