package sync

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/workspace"
	"github.com/AzPepoze/gdrive-bisync/internal/utils"
	lru "github.com/hashicorp/golang-lru/v2"
)

const defaultHashCacheSize = 65536

// ProgressFunc receives the directory being visited. It is informational only.
type ProgressFunc func(dir string)

type cachedHash struct {
	size    int64
	modTime time.Time
	hash    string
}

// SyncLocalState scans the local root. File hashes are cached by path and
// reused while size and mtime are unchanged.
type SyncLocalState struct {
	rootDir string
	ignore  *SyncIgnoreList
	hashes  *lru.Cache[string, cachedHash]
}

func NewSyncLocalState(rootDir string, ignore *SyncIgnoreList) *SyncLocalState {
	hashes, _ := lru.New[string, cachedHash](defaultHashCacheSize)
	return &SyncLocalState{
		rootDir: rootDir,
		ignore:  ignore,
		hashes:  hashes,
	}
}

// Scan walks the root and returns every file and directory keyed by relative path
func (s *SyncLocalState) Scan(ctx context.Context, onProgress ProgressFunc) (map[string]*LocalEntry, error) {
	state := make(map[string]*LocalEntry)

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		if walkErr != nil {
			if path == s.rootDir {
				return fmt.Errorf("walk error: %w", walkErr)
			}
			slog.Warn("local scan skip", "path", path, "error", walkErr)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		relPath, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		relPath = workspace.NormPath(relPath)

		if relPath == rootPath {
			if onProgress != nil {
				onProgress("/")
			}
			return nil
		}

		if s.ignore != nil && s.ignore.ShouldIgnore(relPath) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("local scan stat", "path", relPath, "error", err)
			return nil
		}

		if d.IsDir() {
			if onProgress != nil {
				onProgress(relPath)
			}
			state[relPath] = &LocalEntry{
				Path:    relPath,
				ModTime: info.ModTime(),
				IsDir:   true,
			}
			return nil
		}

		// symlinks, sockets, devices
		if !info.Mode().IsRegular() {
			return nil
		}

		hash, err := s.hash(path, relPath, info)
		if err != nil {
			slog.Warn("local scan hash", "path", relPath, "error", err)
			return nil
		}

		state[relPath] = &LocalEntry{
			Path:    relPath,
			ModTime: info.ModTime(),
			Size:    info.Size(),
			Hash:    hash,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local scan failed: %w", err)
	}

	return state, nil
}

// Stat builds an entry for a single path, as the watcher sees it
func (s *SyncLocalState) Stat(relPath string, info fs.FileInfo) (*LocalEntry, error) {
	if info.IsDir() {
		return &LocalEntry{Path: relPath, ModTime: info.ModTime(), IsDir: true}, nil
	}

	absPath := filepath.Join(s.rootDir, filepath.FromSlash(relPath))
	hash, err := s.hash(absPath, relPath, info)
	if err != nil {
		return nil, err
	}
	return &LocalEntry{
		Path:    relPath,
		ModTime: info.ModTime(),
		Size:    info.Size(),
		Hash:    hash,
	}, nil
}

func (s *SyncLocalState) hash(absPath, relPath string, info fs.FileInfo) (string, error) {
	if cached, ok := s.hashes.Get(relPath); ok &&
		cached.size == info.Size() && cached.modTime.Equal(info.ModTime()) {
		return cached.hash, nil
	}

	hash, err := utils.FileHash(absPath)
	if err != nil {
		return "", err
	}

	s.hashes.Add(relPath, cachedHash{size: info.Size(), modTime: info.ModTime(), hash: hash})
	return hash, nil
}
