package sync

import (
	"context"
	"log/slog"
	"path"
	"sort"

	"github.com/AzPepoze/gdrive-bisync/internal/queue"
	"github.com/AzPepoze/gdrive-bisync/internal/utils"
)

// createRemoteFolders mirrors local directories that have no remote folder.
// Folders are created one at a time in depth order so each parent exists in
// the tree before its children. Returns the number created.
func (se *SyncEngine) createRemoteFolders(ctx context.Context, localState map[string]*LocalEntry) int {
	pending := queue.NewPriorityQueue[string]()
	for _, p := range sortedDirs(localState) {
		if existing, ok := se.tree.Get(p); ok {
			if !existing.IsDir {
				se.reporter.LogEvent(slog.LevelWarn, "remote file occupies local folder path, skipping", "path", p)
			}
			continue
		}
		pending.Enqueue(p, utils.SlashDepth(p))
	}

	if pending.Len() == 0 {
		return 0
	}

	se.reporter.UpdateStatus("Creating remote folders...")

	created := 0
	for _, p := range pending.DequeueAll() {
		if ctx.Err() != nil {
			return created
		}

		if _, err := se.createRemoteFolder(ctx, p); err != nil {
			se.reporter.LogEvent(slog.LevelError, "create remote folder failed", "path", p, "error", err)
			continue
		}
		created++
	}
	return created
}

// createRemoteFolder creates one folder under its resolved parent and caches it
func (se *SyncEngine) createRemoteFolder(ctx context.Context, relPath string) (*RemoteEntry, error) {
	parentID, err := se.tree.ResolveParent(relPath, se.opts.RemoteRootID)
	if err != nil {
		return nil, err
	}

	name := path.Base(relPath)
	var folderID string
	err = se.executor.Do(ctx, "create folder "+relPath, func(ctx context.Context) error {
		var err error
		folderID, err = se.store.Create(ctx, name, parentID, true)
		return err
	})
	if err != nil {
		return nil, err
	}

	entry := &RemoteEntry{
		ID:    folderID,
		Path:  relPath,
		Name:  name,
		IsDir: true,
	}
	se.tree.Set(entry)
	se.reporter.LogEvent(slog.LevelInfo, "created remote folder", "path", relPath)
	return entry, nil
}

// sortedDirs returns the directory paths of a local scan ordered by path.
// The depth queue keeps this order within a level.
func sortedDirs(localState map[string]*LocalEntry) []string {
	dirs := make([]string, 0)
	for p, e := range localState {
		if e.IsDir {
			dirs = append(dirs, p)
		}
	}
	sort.Strings(dirs)
	return dirs
}
