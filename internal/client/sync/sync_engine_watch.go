package sync

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
)

// handleWatcherEvents applies debounced local changes until the watcher
// closes its channel. Each event runs on its own goroutine.
func (se *SyncEngine) handleWatcherEvents(ctx context.Context) {
	var wg sync.WaitGroup
	defer wg.Wait()

	for ev := range se.watcher.Events() {
		if ctx.Err() != nil {
			return
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			se.handleWatchEvent(ctx, ev)
		}()
	}
}

// handleWatchEvent reconciles one path from what is on disk now: a missing
// path is a delete, a directory is a folder create, a file is an upload.
func (se *SyncEngine) handleWatchEvent(ctx context.Context, ev WatchEvent) {
	relPath := ev.Path
	slog.Info("local change detected", "event", ev.Event, "path", relPath)

	se.reporter.StopIdleCountdown()
	defer se.resumeIdleCountdown()

	se.reporter.UpdateStatus("Processing change: " + relPath)

	info, err := os.Stat(se.absPath(relPath))
	switch {
	case errors.Is(err, os.ErrNotExist):
		se.onLocalRemove(ctx, relPath)
	case err != nil:
		se.reporter.LogEvent(slog.LevelError, "stat changed path", "path", relPath, "error", err)
	case info.IsDir():
		se.onLocalDir(ctx, relPath)
	case !info.Mode().IsRegular():
		slog.Debug("watch skip", "path", relPath, "reason", "not a regular file")
	case info.Size() == 0:
		slog.Warn("skipping 0-byte file", "path", relPath)
	default:
		se.onLocalWrite(ctx, relPath, info)
	}
}

func (se *SyncEngine) onLocalWrite(ctx context.Context, relPath string, info os.FileInfo) {
	action := ActionUploadNew
	cached, exists := se.tree.Get(relPath)
	if exists {
		if cached.IsDir {
			se.reporter.LogEvent(slog.LevelWarn, "remote folder occupies local file path, skipping", "path", relPath)
			return
		}
		action = ActionUploadUpdate

		local, err := se.localState.Stat(relPath, info)
		if err != nil {
			se.reporter.LogEvent(slog.LevelError, "hash changed file", "path", relPath, "error", err)
			return
		}
		if local.Hash != "" && local.Hash == cached.Hash {
			slog.Debug("watch skip", "path", relPath, "reason", "identical")
			return
		}
	}

	if !se.syncStatus.TrySetSyncing(relPath, action) {
		slog.Debug("watch skip", "path", relPath, "reason", "syncing")
		return
	}

	se.reporter.LogEvent(slog.LevelInfo, "uploading", "path", relPath)
	if err := se.uploadFile(ctx, relPath, action); err != nil {
		se.syncStatus.SetError(relPath, err)
		se.reporter.LogEvent(slog.LevelError, "local change failed", "path", relPath, "error", err)
		se.reporter.UpdateStatus("Error processing change. Check logs.")
		return
	}
	se.syncStatus.SetCompleted(relPath)
}

func (se *SyncEngine) onLocalDir(ctx context.Context, relPath string) {
	if existing, ok := se.tree.Get(relPath); ok {
		if !existing.IsDir {
			se.reporter.LogEvent(slog.LevelWarn, "remote file occupies local folder path, skipping", "path", relPath)
		}
		return
	}

	if !se.syncStatus.TrySetSyncing(relPath, ActionUploadNew) {
		return
	}

	if _, err := se.createRemoteFolder(ctx, relPath); err != nil {
		se.syncStatus.SetError(relPath, err)
		se.reporter.LogEvent(slog.LevelError, "create remote folder failed", "path", relPath, "error", err)
		return
	}
	se.syncStatus.SetCompleted(relPath)
}

func (se *SyncEngine) onLocalRemove(ctx context.Context, relPath string) {
	if _, ok := se.tree.Get(relPath); !ok {
		slog.Warn("remote file/folder not found, skipping delete", "path", relPath)
		return
	}

	if !se.syncStatus.TrySetSyncing(relPath, ActionDeleteRemote) {
		slog.Debug("watch skip", "path", relPath, "reason", "syncing")
		return
	}

	se.reporter.LogEvent(slog.LevelInfo, "deleting", "path", relPath)
	if err := se.deleteRemote(ctx, relPath); err != nil {
		se.syncStatus.SetError(relPath, err)
		se.reporter.LogEvent(slog.LevelError, "local delete failed", "path", relPath, "error", err)
		se.reporter.UpdateStatus("Error processing change. Check logs.")
		return
	}
	se.syncStatus.SetCompleted(relPath)
}
