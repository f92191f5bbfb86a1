package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/status"
	"github.com/AzPepoze/gdrive-bisync/internal/client/workspace"
	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPeriodicInterval = time.Minute
	statusCleanupAge        = 10 * time.Minute
)

var (
	ErrSyncAlreadyRunning = errors.New("sync already running")
)

// Options configures a SyncEngine
type Options struct {
	LocalRoot      string
	RemoteRootID   string
	MetadataPath   string
	IgnorePatterns []*regexp.Regexp

	DebounceDelay    time.Duration
	PeriodicInterval time.Duration
	PropagateDeletes bool

	ScanConcurrency int
	// TaskConcurrency limits concurrent tasks in a cycle, 0 means unbounded
	TaskConcurrency int

	NetworkRetryDelay time.Duration
	RetryDelay        time.Duration
	MaxAttempts       int

	// DisableWatcher runs periodic cycles only
	DisableWatcher bool
}

// SyncEngine reconciles the local root with the remote store: a full cycle
// on start and on every interval, and incremental actions for local changes.
type SyncEngine struct {
	opts     Options
	store    remote.Store
	reporter status.Reporter

	journal     *SyncJournal
	tree        *RemoteTree
	localState  *SyncLocalState
	remoteState *SyncRemoteState
	ignoreList  *SyncIgnoreList
	decider     Decider
	executor    *Executor
	syncStatus  *SyncStatus
	watcher     *FileWatcher

	muSync  sync.Mutex
	running atomic.Bool
	trigger chan struct{}
	wg      sync.WaitGroup

	nextCycleAt atomic.Int64
	lastReport  atomic.Pointer[CycleReport]
}

func NewSyncEngine(opts Options, store remote.Store, reporter status.Reporter) (*SyncEngine, error) {
	if opts.LocalRoot == "" {
		return nil, fmt.Errorf("sync engine: local root is required")
	}
	if opts.RemoteRootID == "" {
		return nil, fmt.Errorf("sync engine: remote root id is required")
	}
	if store == nil {
		return nil, fmt.Errorf("sync engine: remote store is required")
	}
	if reporter == nil {
		reporter = status.Nop{}
	}
	if opts.PeriodicInterval <= 0 {
		opts.PeriodicInterval = DefaultPeriodicInterval
	}
	if opts.DebounceDelay <= 0 {
		opts.DebounceDelay = DefaultDebounceTimeout
	}
	if opts.MetadataPath == "" {
		opts.MetadataPath = filepath.Join(opts.LocalRoot, ".bisync-metadata.json")
	}

	reserved := []string{workspace.LockFileName}
	if rel, err := filepath.Rel(opts.LocalRoot, opts.MetadataPath); err == nil {
		if rel = workspace.NormPath(rel); !workspace.IsOutside(rel) {
			reserved = append(reserved, rel)
		}
	}

	ignoreList := NewSyncIgnoreList(opts.LocalRoot, opts.IgnorePatterns, reserved...)
	executor := NewExecutor(opts.NetworkRetryDelay, opts.RetryDelay, opts.MaxAttempts, reporter)

	se := &SyncEngine{
		opts:        opts,
		store:       store,
		reporter:    reporter,
		journal:     NewSyncJournal(opts.MetadataPath),
		tree:        NewRemoteTree(),
		localState:  NewSyncLocalState(opts.LocalRoot, ignoreList),
		remoteState: NewSyncRemoteState(store, opts.RemoteRootID, ignoreList, executor, opts.ScanConcurrency),
		ignoreList:  ignoreList,
		decider:     Decider{PropagateDeletes: opts.PropagateDeletes},
		executor:    executor,
		syncStatus:  NewSyncStatus(),
		trigger:     make(chan struct{}, 1),
	}

	if !opts.DisableWatcher {
		se.watcher = NewFileWatcher(opts.LocalRoot)
		se.watcher.SetDebounceTimeout(opts.DebounceDelay)
		se.watcher.FilterPaths(ignoreList.ShouldIgnore)
	}

	return se, nil
}

// Start runs the initial cycle, then the watcher and the periodic loop.
// Cancel ctx and call Stop to shut down.
func (se *SyncEngine) Start(ctx context.Context) error {
	slog.Info("sync start", "root", se.opts.LocalRoot, "remoteRoot", se.opts.RemoteRootID, "interval", se.opts.PeriodicInterval)

	se.ignoreList.Load()

	slog.Info("running initial sync")
	if _, err := se.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("failed to run initial sync", "error", err)
	}

	if se.watcher != nil {
		if err := se.watcher.Start(ctx); err != nil {
			return fmt.Errorf("failed to start file watcher: %w", err)
		}

		se.wg.Add(1)
		go func() {
			defer se.wg.Done()
			se.handleWatcherEvents(ctx)
		}()
		se.reporter.LogEvent(slog.LevelInfo, "watching for local changes", "root", se.opts.LocalRoot)
	}

	se.wg.Add(1)
	go func() {
		defer se.wg.Done()

		// using a timer and not a ticker to avoid queued ticks when
		// a cycle takes longer than the interval
		timer := time.NewTimer(se.opts.PeriodicInterval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-timer.C:
				slog.Debug("periodic sync")
			case <-se.trigger:
				slog.Debug("triggered sync")
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
			}

			if _, err := se.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("failed to run sync", "error", err)
			}
			timer.Reset(se.opts.PeriodicInterval)
		}
	}()

	return nil
}

// Stop waits for the background loops, which exit once the Start context is
// cancelled, and persists unsaved metadata.
func (se *SyncEngine) Stop() error {
	slog.Info("sync stop")

	if se.watcher != nil {
		se.watcher.Stop()
	}
	se.wg.Wait()
	se.reporter.StopIdleCountdown()
	se.syncStatus.Close()

	if !se.journal.Dirty() {
		return nil
	}
	if err := se.journal.Save(); err != nil {
		return fmt.Errorf("save sync metadata: %w", err)
	}
	slog.Info("sync metadata saved", "records", se.journal.Count())
	return nil
}

// Trigger asks the periodic loop to run a cycle now. It never blocks.
func (se *SyncEngine) Trigger() {
	select {
	case se.trigger <- struct{}{}:
	default:
	}
}

// IsRunning reports whether a full cycle is in progress
func (se *SyncEngine) IsRunning() bool {
	return se.running.Load()
}

// LastReport returns the summary of the last finished cycle, nil before the first one
func (se *SyncEngine) LastReport() *CycleReport {
	if r := se.lastReport.Load(); r != nil {
		return r.Clone()
	}
	return nil
}

// NextCycleAt is zero while a cycle runs
func (se *SyncEngine) NextCycleAt() time.Time {
	ns := se.nextCycleAt.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

func (se *SyncEngine) Status() *SyncStatus {
	return se.syncStatus
}

func (se *SyncEngine) Journal() *SyncJournal {
	return se.journal
}

func (se *SyncEngine) Tree() *RemoteTree {
	return se.tree
}

// RunCycle performs one full reconciliation. Task failures do not stop the
// cycle; they are joined into the returned error after every task settled
// and the successful ones were recorded.
func (se *SyncEngine) RunCycle(ctx context.Context) (*CycleReport, error) {
	if !se.muSync.TryLock() {
		return nil, ErrSyncAlreadyRunning
	}
	defer se.muSync.Unlock()

	se.running.Store(true)
	defer se.running.Store(false)

	se.nextCycleAt.Store(0)
	se.reporter.StopIdleCountdown()

	report := newCycleReport()
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		se.lastReport.Store(report)
	}()

	slog.Info("sync cycle start")
	se.reporter.UpdateStatus("Starting sync cycle...")

	se.loadJournal()

	// scan both sides
	tScan := time.Now()
	var (
		localState  map[string]*LocalEntry
		remoteState map[string]*RemoteEntry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		localState, err = se.localState.Scan(gctx, func(dir string) {
			se.reporter.UpdateStatus("Scanning local: " + dir)
		})
		return err
	})
	g.Go(func() error {
		var err error
		remoteState, err = se.remoteState.Scan(gctx, func(dir string) {
			se.reporter.UpdateStatus("Scanning remote: " + dir)
		})
		return err
	})
	if err := g.Wait(); err != nil {
		se.reporter.LogEvent(slog.LevelError, "sync cycle aborted", "error", err)
		se.reporter.UpdateStatus("Sync failed. Check logs.")
		se.scheduleNext()
		return report, fmt.Errorf("scan: %w", err)
	}
	se.tree.Replace(remoteState)
	report.ScanTime = time.Since(tScan)
	report.LocalEntries = len(localState)
	report.RemoteEntries = len(remoteState)

	// folders first, shallowest first, so every task finds its parent
	tFolders := time.Now()
	report.FoldersCreated = se.createRemoteFolders(ctx, localState)
	report.FolderTime = time.Since(tFolders)

	tasks := se.computeTasks(localState, se.tree.Snapshot(), se.journal.Snapshot(), report)

	tTasks := time.Now()
	err := se.executeTasks(ctx, tasks, report)
	report.TaskTime = time.Since(tTasks)

	if ctx.Err() != nil {
		// still record what completed before shutdown
		se.saveJournal()
		return report, ctx.Err()
	}

	se.saveJournal()
	se.syncStatus.Cleanup(statusCleanupAge)

	if report.Tasks() > 0 || report.FoldersCreated > 0 || err != nil {
		slog.Info("full sync",
			"local", report.LocalEntries,
			"remote", report.RemoteEntries,
			"folders", report.FoldersCreated,
			"uploads", report.Actions[ActionUploadNew]+report.Actions[ActionUploadUpdate]+report.Actions[ActionUploadConflict],
			"downloads", report.Actions[ActionDownloadNew]+report.Actions[ActionDownloadUpdate],
			"conflicts", report.Actions[ActionUploadConflict],
			"localDeletes", report.Actions[ActionDeleteLocal],
			"remoteDeletes", report.Actions[ActionDeleteRemote],
			"skipped", report.Skipped,
			"failed", report.Failed,
			"tsScan", report.ScanTime,
			"tsFolders", report.FolderTime,
			"tsTasks", report.TaskTime,
			"tsTotal", time.Since(report.StartedAt),
		)
	}

	if err != nil {
		se.reporter.LogEvent(slog.LevelWarn, "sync cycle finished with errors", "failed", report.Failed)
		se.reporter.UpdateStatus("Sync finished with errors. Check logs.")
	} else {
		se.reporter.LogEvent(slog.LevelInfo, "sync cycle complete", "tasks", report.Tasks(), "took", time.Since(report.StartedAt).Round(time.Millisecond))
		se.reporter.UpdateStatus("Sync complete.")
	}

	se.scheduleNext()
	return report, err
}

// loadJournal refreshes records from disk. Watcher changes that were not
// saved yet are written first so the reload cannot drop them.
func (se *SyncEngine) loadJournal() {
	if err := se.journal.Reload(); err != nil {
		se.reporter.LogEvent(slog.LevelError, "error reloading sync metadata", "error", err)
		return
	}
	if se.journal.Count() == 0 {
		slog.Warn("no sync metadata found, starting fresh", "path", se.opts.MetadataPath)
	} else {
		slog.Info("loaded sync metadata", "records", se.journal.Count())
	}
}

func (se *SyncEngine) saveJournal() {
	if err := se.journal.Save(); err != nil {
		se.reporter.LogEvent(slog.LevelError, "error saving sync metadata", "error", err)
		return
	}
	slog.Debug("sync metadata saved", "records", se.journal.Count())
}

func (se *SyncEngine) scheduleNext() {
	next := time.Now().Add(se.opts.PeriodicInterval)
	se.nextCycleAt.Store(next.UnixNano())
	se.reporter.StartIdleCountdown(se.opts.PeriodicInterval)
	slog.Debug("next sync", "at", humanize.Time(next))
}

// resumeIdleCountdown restarts the countdown with the time left until the next cycle
func (se *SyncEngine) resumeIdleCountdown() {
	next := se.NextCycleAt()
	if next.IsZero() {
		return
	}
	if remaining := time.Until(next); remaining > 0 {
		se.reporter.StartIdleCountdown(remaining)
	}
}

// computeTasks applies the decider to every known path. Directories and
// paths currently owned by the watcher never produce tasks.
func (se *SyncEngine) computeTasks(
	localState map[string]*LocalEntry,
	remoteState map[string]*RemoteEntry,
	records map[string]*SyncRecord,
	report *CycleReport,
) []SyncTask {
	paths := mapset.NewThreadUnsafeSetFromMapKeys(localState)
	for p := range remoteState {
		paths.Add(p)
	}
	if se.decider.PropagateDeletes {
		for p := range records {
			if !se.ignoreList.ShouldIgnore(p) {
				paths.Add(p)
			}
		}
	}

	tasks := make([]SyncTask, 0)
	for _, p := range paths.ToSlice() {
		local := localState[p]
		remote := remoteState[p]

		if (local != nil && local.IsDir) || (remote != nil && remote.IsDir) {
			continue
		}

		if se.syncStatus.IsSyncing(p) {
			slog.Debug("sync skip", "path", p, "reason", "syncing")
			report.Skipped++
			continue
		}

		action := se.decider.Decide(local, remote, records[p])
		if action.IsSkip() {
			continue
		}

		tasks = append(tasks, SyncTask{Action: action, Path: p})
	}

	sort.Slice(tasks, func(i, j int) bool {
		return tasks[i].Path < tasks[j].Path
	})
	return tasks
}
