package sync

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/workspace"
	"github.com/rjeczalik/notify"
)

const (
	DefaultIgnoreTimeout   = 3 * time.Second
	DefaultDebounceTimeout = 5 * time.Second
	defaultCleanupInterval = 15 * time.Second
	eventBufferSize        = 256
)

// FilterCallback returns true if events for the relative path should be dropped
type FilterCallback func(relPath string) bool

// WatchEvent is the last raw event seen for a path once its debounce window closed
type WatchEvent struct {
	Path  string
	Event notify.Event
}

// FileWatcher watches a tree recursively and coalesces bursts of events per
// relative path. A new event for a path cancels and replaces its pending timer.
type FileWatcher struct {
	watchDir        string
	events          chan WatchEvent
	rawEvents       chan notify.EventInfo
	ignore          map[string]time.Time
	ignoreMu        sync.Mutex
	cleanupInterval time.Duration
	done            chan struct{}
	stopOnce        sync.Once
	wg              sync.WaitGroup

	pending         map[string]*pendingEvent
	debounceMu      sync.Mutex
	debounceTimeout time.Duration

	ignoreCallback FilterCallback
}

type pendingEvent struct {
	event notify.Event
	timer *time.Timer
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir:        watchDir,
		ignore:          make(map[string]time.Time),
		cleanupInterval: defaultCleanupInterval,
		done:            make(chan struct{}),
		pending:         make(map[string]*pendingEvent),
		debounceTimeout: DefaultDebounceTimeout,
	}
}

func (fw *FileWatcher) SetCleanupInterval(interval time.Duration) {
	fw.cleanupInterval = interval
}

// SetDebounceTimeout must be called before Start
func (fw *FileWatcher) SetDebounceTimeout(timeout time.Duration) {
	if timeout > 0 {
		fw.debounceTimeout = timeout
	}
}

// FilterPaths must be called before Start
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.ignoreCallback = callback
}

func (fw *FileWatcher) Start(ctx context.Context) error {
	// notify reports resolved paths, e.g. /private/var on macOS
	if resolved, err := filepath.EvalSymlinks(fw.watchDir); err == nil {
		fw.watchDir = resolved
	}

	slog.Info("file watcher start", "dir", fw.watchDir, "debounce", fw.debounceTimeout)

	fw.rawEvents = make(chan notify.EventInfo, eventBufferSize)
	fw.events = make(chan WatchEvent, eventBufferSize)

	recursivePath := filepath.Join(fw.watchDir, "...")
	if err := notify.Watch(recursivePath, fw.rawEvents, notify.Create, notify.Write, notify.Remove, notify.Rename); err != nil {
		return err
	}

	fw.wg.Add(2)
	go fw.filterEvents(ctx)
	go fw.cleanupExpiredEntries(ctx)

	return nil
}

func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		slog.Info("file watcher stopping")

		close(fw.done)
		if fw.rawEvents != nil {
			notify.Stop(fw.rawEvents)
		}
		fw.wg.Wait()

		slog.Info("file watcher stopped")
	})
}

// Events is closed after Stop or when the start context ends
func (fw *FileWatcher) Events() <-chan WatchEvent {
	return fw.events
}

// IgnoreOnce suppresses the next debounced event for relPath, within DefaultIgnoreTimeout
// of the debounce window closing
func (fw *FileWatcher) IgnoreOnce(relPath string) {
	fw.IgnoreOnceWithTimeout(relPath, fw.debounceTimeout+DefaultIgnoreTimeout)
}

func (fw *FileWatcher) IgnoreOnceWithTimeout(relPath string, timeout time.Duration) {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()
	fw.ignore[relPath] = time.Now().Add(timeout)
}

// isPathTemporarilyIgnored consumes an unexpired ignore entry
func (fw *FileWatcher) isPathTemporarilyIgnored(relPath string) bool {
	fw.ignoreMu.Lock()
	defer fw.ignoreMu.Unlock()

	expiry, exists := fw.ignore[relPath]
	if !exists {
		return false
	}
	delete(fw.ignore, relPath)
	return time.Now().Before(expiry)
}

func (fw *FileWatcher) filterEvents(ctx context.Context) {
	defer func() {
		fw.debounceMu.Lock()
		dropped := len(fw.pending)
		for relPath, p := range fw.pending {
			p.timer.Stop()
			delete(fw.pending, relPath)
		}
		fw.debounceMu.Unlock()

		if dropped > 0 {
			slog.Debug("file watcher dropped pending events on exit", "count", dropped)
		}

		fw.wg.Done()
		close(fw.events)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case ei, ok := <-fw.rawEvents:
			if !ok {
				return
			}

			relPath, err := filepath.Rel(fw.watchDir, ei.Path())
			if err != nil {
				continue
			}
			relPath = workspace.NormPath(relPath)
			if relPath == rootPath || workspace.IsOutside(relPath) {
				continue
			}

			if fw.ignoreCallback != nil && fw.ignoreCallback(relPath) {
				continue
			}

			fw.debounceEvent(relPath, ei.Event())
		}
	}
}

func (fw *FileWatcher) debounceEvent(relPath string, event notify.Event) {
	fw.debounceMu.Lock()
	defer fw.debounceMu.Unlock()

	if p, exists := fw.pending[relPath]; exists {
		p.timer.Stop()
	}

	fw.pending[relPath] = &pendingEvent{
		event: event,
		timer: time.AfterFunc(fw.debounceTimeout, func() {
			fw.flushEvent(relPath)
		}),
	}
}

func (fw *FileWatcher) flushEvent(relPath string) {
	fw.debounceMu.Lock()
	p, exists := fw.pending[relPath]
	if !exists {
		fw.debounceMu.Unlock()
		return
	}
	delete(fw.pending, relPath)

	if fw.isPathTemporarilyIgnored(relPath) {
		fw.debounceMu.Unlock()
		slog.Debug("file watcher suppressed", "path", relPath)
		return
	}

	// sent under the lock so filterEvents cannot close the channel mid-send
	select {
	case fw.events <- WatchEvent{Path: relPath, Event: p.event}:
		slog.Debug("file watcher", "event", p.event, "path", relPath)
	default:
		slog.Warn("file watcher dropped", "reason", "channel full", "path", relPath)
	}
	fw.debounceMu.Unlock()
}

func (fw *FileWatcher) cleanupExpiredEntries(ctx context.Context) {
	defer fw.wg.Done()

	ticker := time.NewTicker(fw.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.done:
			return
		case <-ticker.C:
			fw.ignoreMu.Lock()
			now := time.Now()
			for relPath, expiry := range fw.ignore {
				if now.After(expiry) {
					delete(fw.ignore, relPath)
				}
			}
			fw.ignoreMu.Unlock()
		}
	}
}
