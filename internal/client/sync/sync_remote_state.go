package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync"

	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const DefaultScanConcurrency = 8

// SyncRemoteState scans the remote tree below a root folder. Sub-folders are
// listed concurrently; the semaphore bounds in-flight List calls tree-wide.
type SyncRemoteState struct {
	store    remote.Store
	rootID   string
	ignore   *SyncIgnoreList
	executor *Executor
	sem      *semaphore.Weighted
}

func NewSyncRemoteState(store remote.Store, rootID string, ignore *SyncIgnoreList, executor *Executor, concurrency int) *SyncRemoteState {
	if concurrency <= 0 {
		concurrency = DefaultScanConcurrency
	}
	return &SyncRemoteState{
		store:    store,
		rootID:   rootID,
		ignore:   ignore,
		executor: executor,
		sem:      semaphore.NewWeighted(int64(concurrency)),
	}
}

// Scan returns every remote file and folder keyed by relative path
func (s *SyncRemoteState) Scan(ctx context.Context, onProgress ProgressFunc) (map[string]*RemoteEntry, error) {
	var (
		mu    sync.Mutex
		state = make(map[string]*RemoteEntry)
	)

	g, gctx := errgroup.WithContext(ctx)

	var visit func(folderID, prefix string) error
	visit = func(folderID, prefix string) error {
		if onProgress != nil {
			if prefix == "" {
				onProgress("/")
			} else {
				onProgress(prefix)
			}
		}

		files, err := s.listAll(gctx, folderID, prefix)
		if err != nil {
			return err
		}

		for _, f := range files {
			if strings.Contains(f.Name, "/") {
				slog.Warn("remote scan skip", "name", f.Name, "parent", prefix, "reason", "name contains '/'")
				continue
			}

			relPath := f.Name
			if prefix != "" {
				relPath = path.Join(prefix, f.Name)
			}

			if s.ignore != nil && s.ignore.ShouldIgnore(relPath) {
				continue
			}

			entry := &RemoteEntry{
				ID:      f.ID,
				Path:    relPath,
				Name:    f.Name,
				ModTime: f.ModifiedTime,
				Size:    f.Size,
				Hash:    f.ContentHash(),
				IsDir:   f.IsFolder(),
			}

			mu.Lock()
			if prev, dup := state[relPath]; dup {
				// same name twice in one folder, keep the first one listed
				slog.Warn("remote scan duplicate", "path", relPath, "kept", prev.ID, "skipped", f.ID)
				mu.Unlock()
				continue
			}
			state[relPath] = entry
			mu.Unlock()

			if entry.IsDir {
				childID, childPrefix := entry.ID, relPath
				g.Go(func() error {
					return visit(childID, childPrefix)
				})
			}
		}
		return nil
	}

	g.Go(func() error {
		return visit(s.rootID, "")
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("remote scan failed: %w", err)
	}
	return state, nil
}

// listAll pages through one folder. Each page is fetched under the retry policy.
func (s *SyncRemoteState) listAll(ctx context.Context, folderID, prefix string) ([]*remote.File, error) {
	var (
		files     []*remote.File
		pageToken string
	)

	for {
		var page *remote.ListPage
		err := s.executor.Do(ctx, "list "+displayPath(prefix), func(ctx context.Context) error {
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return err
			}
			defer s.sem.Release(1)

			var err error
			page, err = s.store.List(ctx, folderID, pageToken)
			return err
		})
		if err != nil {
			return nil, err
		}

		files = append(files, page.Files...)
		if page.NextPageToken == "" {
			return files, nil
		}
		pageToken = page.NextPageToken
	}
}

func displayPath(p string) string {
	if p == "" || p == rootPath {
		return "/"
	}
	return p
}
