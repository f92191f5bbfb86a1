package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	"github.com/AzPepoze/gdrive-bisync/internal/utils"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

// executeTasks runs every task concurrently and waits for all of them. Each
// failure is logged and counted; the joined failures are returned.
func (se *SyncEngine) executeTasks(ctx context.Context, tasks []SyncTask, report *CycleReport) error {
	if len(tasks) == 0 {
		return nil
	}

	se.reporter.UpdateStatus(fmt.Sprintf("Syncing %d file(s)...", len(tasks)))

	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	if se.opts.TaskConcurrency > 0 {
		g.SetLimit(se.opts.TaskConcurrency)
	}

	for _, task := range tasks {
		report.addAction(task.Action)
		g.Go(func() error {
			if err := se.runTask(ctx, task); err != nil {
				if ctx.Err() == nil {
					report.addFailure(err)
				}
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			// never cancel siblings
			return nil
		})
	}
	_ = g.Wait()

	return errors.Join(errs...)
}

// runTask executes one task under the path's status entry
func (se *SyncEngine) runTask(ctx context.Context, task SyncTask) error {
	if !se.syncStatus.TrySetSyncing(task.Path, task.Action) {
		slog.Debug("sync skip", "path", task.Path, "reason", "syncing")
		return nil
	}

	var err error
	switch task.Action {
	case ActionUploadNew, ActionUploadUpdate, ActionUploadConflict:
		err = se.uploadFile(ctx, task.Path, task.Action)
	case ActionDownloadNew, ActionDownloadUpdate:
		err = se.downloadFile(ctx, task.Path)
	case ActionDeleteRemote:
		err = se.deleteRemote(ctx, task.Path)
	case ActionDeleteLocal:
		err = se.deleteLocal(task.Path)
	default:
		err = fmt.Errorf("unexpected action %s", task.Action)
	}

	if err != nil {
		se.syncStatus.SetError(task.Path, err)
		se.reporter.LogEvent(slog.LevelError, "sync failed", "action", task.Action, "path", task.Path, "error", err)
		return fmt.Errorf("%s %s: %w", task.Action, task.Path, err)
	}

	se.syncStatus.SetCompleted(task.Path)
	if task.Action == ActionUploadConflict {
		se.reporter.LogEvent(slog.LevelWarn, "conflict resolved with local copy", "path", task.Path)
	}
	return nil
}

// uploadFile creates the remote file when needed and replaces its content.
// Create and Update retry separately so a retry never creates a duplicate.
func (se *SyncEngine) uploadFile(ctx context.Context, relPath string, action SyncAction) error {
	absPath := se.absPath(relPath)

	fileID := ""
	if existing, ok := se.tree.Get(relPath); ok && !existing.IsDir {
		fileID = existing.ID
	}

	if fileID == "" {
		parentID, err := se.tree.ResolveParent(relPath, se.opts.RemoteRootID)
		if err != nil {
			return err
		}

		err = se.executor.Do(ctx, "create "+relPath, func(ctx context.Context) error {
			var err error
			fileID, err = se.store.Create(ctx, path.Base(relPath), parentID, false)
			return err
		})
		if err != nil {
			return err
		}
		// recorded as synced: an interrupted content upload is then retried
		// as an update, never downloaded over the local file
		se.tree.Set(&RemoteEntry{ID: fileID, Path: relPath, Name: path.Base(relPath), Hash: remote.EmptyMD5})
		se.journal.Set(relPath, remote.EmptyMD5)
	}

	var uploaded *remote.File
	err := se.executor.Do(ctx, "upload "+relPath, func(ctx context.Context) error {
		file, err := os.Open(absPath)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return Permanent(err)
			}
			return err
		}
		defer file.Close()

		uploaded, err = se.store.Update(ctx, fileID, file)
		return err
	})
	if err != nil {
		return err
	}

	se.journal.Set(relPath, uploaded.MD5)
	se.tree.Set(remoteEntryFromFile(relPath, uploaded))

	se.reporter.LogEvent(slog.LevelInfo, "uploaded", "path", relPath, "action", action, "size", humanize.IBytes(uint64(uploaded.Size)))
	return nil
}

// downloadFile streams the remote content into a temp file next to the
// target and renames it into place
func (se *SyncEngine) downloadFile(ctx context.Context, relPath string) error {
	entry, ok := se.tree.Get(relPath)
	if !ok || entry.IsDir {
		return Permanent(fmt.Errorf("%w: %s", remote.ErrNotFound, relPath))
	}

	absPath := se.absPath(relPath)
	if err := utils.EnsureParent(absPath); err != nil {
		return fmt.Errorf("create local parent: %w", err)
	}

	err := se.executor.Do(ctx, "download "+relPath, func(ctx context.Context) error {
		body, err := se.store.GetContent(ctx, entry.ID)
		if err != nil {
			return err
		}
		defer body.Close()

		return se.writeLocalFile(absPath, relPath, body, entry.ModTime)
	})
	if err != nil {
		return err
	}

	se.journal.Set(relPath, entry.Hash)
	se.reporter.LogEvent(slog.LevelInfo, "downloaded", "path", relPath, "size", humanize.IBytes(uint64(entry.Size)))
	return nil
}

func (se *SyncEngine) writeLocalFile(absPath, relPath string, r io.Reader, modTime time.Time) error {
	tmp, err := os.CreateTemp(filepath.Dir(absPath), tempFilePrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if !modTime.IsZero() {
		if err := os.Chtimes(tmpName, modTime, modTime); err != nil {
			slog.Debug("set mtime", "path", relPath, "error", err)
		}
	}

	se.ignoreNextEvent(relPath)
	return os.Rename(tmpName, absPath)
}

func (se *SyncEngine) deleteRemote(ctx context.Context, relPath string) error {
	entry, ok := se.tree.Get(relPath)
	if !ok {
		se.journal.Delete(relPath)
		return nil
	}

	err := se.executor.Do(ctx, "delete remote "+relPath, func(ctx context.Context) error {
		err := se.store.Delete(ctx, entry.ID)
		if errors.Is(err, remote.ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}

	se.journal.DeletePrefix(relPath)
	se.tree.DeletePrefix(relPath)
	se.reporter.LogEvent(slog.LevelInfo, "deleted remote", "path", relPath)
	return nil
}

func (se *SyncEngine) deleteLocal(relPath string) error {
	se.ignoreNextEvent(relPath)
	if err := os.Remove(se.absPath(relPath)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	se.journal.Delete(relPath)
	se.tree.Delete(relPath)
	se.reporter.LogEvent(slog.LevelInfo, "deleted local", "path", relPath)
	return nil
}

func (se *SyncEngine) ignoreNextEvent(relPath string) {
	if se.watcher != nil {
		se.watcher.IgnoreOnce(relPath)
	}
}

func (se *SyncEngine) absPath(relPath string) string {
	return filepath.Join(se.opts.LocalRoot, filepath.FromSlash(relPath))
}

func remoteEntryFromFile(relPath string, f *remote.File) *RemoteEntry {
	return &RemoteEntry{
		ID:      f.ID,
		Path:    relPath,
		Name:    f.Name,
		ModTime: f.ModifiedTime,
		Size:    f.Size,
		Hash:    f.ContentHash(),
		IsDir:   f.IsFolder(),
	}
}
