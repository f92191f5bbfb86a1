package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/config"
	"github.com/AzPepoze/gdrive-bisync/internal/client/status"
	"github.com/AzPepoze/gdrive-bisync/internal/client/sync"
	"github.com/AzPepoze/gdrive-bisync/internal/client/workspace"
	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Client struct {
	config     *config.Config
	workspace  *workspace.Workspace
	store      remote.Store
	closeStore func() error
	engine     *sync.SyncEngine
	cps        *ControlPlaneServer
}

// New wires the workspace, remote backend, sync engine and, when enabled,
// the control plane. Nothing touches the disk or the network until Start.
func New(ctx context.Context, cfg *config.Config, reporter status.Reporter) (*Client, error) {
	ws, err := workspace.NewWorkspace(cfg.LocalRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}

	store, closeStore, err := NewRemoteStore(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create remote store: %w", err)
	}

	return newClient(cfg, ws, store, closeStore, reporter)
}

// NewWithStore is New with an already constructed backend
func NewWithStore(cfg *config.Config, store remote.Store, reporter status.Reporter) (*Client, error) {
	ws, err := workspace.NewWorkspace(cfg.LocalRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace: %w", err)
	}
	return newClient(cfg, ws, store, func() error { return nil }, reporter)
}

func newClient(cfg *config.Config, ws *workspace.Workspace, store remote.Store, closeStore func() error, reporter status.Reporter) (*Client, error) {
	engine, err := sync.NewSyncEngine(sync.Options{
		LocalRoot:         ws.Root,
		RemoteRootID:      cfg.RemoteRootID,
		MetadataPath:      cfg.MetadataPath(),
		IgnorePatterns:    cfg.IgnorePatterns(),
		DebounceDelay:     cfg.DebounceDelay(),
		PeriodicInterval:  cfg.PeriodicInterval(),
		PropagateDeletes:  cfg.PropagateDeletes,
		ScanConcurrency:   cfg.ScanConcurrency,
		TaskConcurrency:   cfg.TaskConcurrency,
		NetworkRetryDelay: cfg.NetworkRetryDelay(),
		RetryDelay:        cfg.RetryDelay(),
		MaxAttempts:       cfg.Retry.MaxAttempts,
	}, store, reporter)
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to create sync engine: %w", err)
	}

	c := &Client{
		config:     cfg,
		workspace:  ws,
		store:      store,
		closeStore: closeStore,
		engine:     engine,
	}

	if cfg.HTTP.Enabled {
		c.cps, err = NewControlPlaneServer(&ControlPlaneConfig{
			Addr:      cfg.HTTP.Addr,
			AuthToken: cfg.HTTP.Token,
		}, engine)
		if err != nil {
			closeStore()
			return nil, &config.Error{Field: "http.addr", Reason: err.Error()}
		}
	}

	return c, nil
}

func (c *Client) Engine() *sync.SyncEngine {
	return c.engine
}

// Start runs the engine and the control plane until ctx is cancelled, then
// shuts both down and flushes sync metadata.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("bisync client start", "root", c.config.LocalRoot, "backend", c.config.Backend, "remoteRoot", c.config.RemoteRootID)

	if err := c.workspace.Setup(); err != nil {
		c.closeStore()
		return fmt.Errorf("failed to setup workspace: %w", err)
	}

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		if err := c.engine.Start(egCtx); err != nil {
			return fmt.Errorf("failed to start sync engine: %w", err)
		}
		return nil
	})

	if c.cps != nil {
		eg.Go(func() error {
			if err := c.cps.Start(egCtx); err != nil {
				return fmt.Errorf("failed to start control plane: %w", err)
			}
			return nil
		})

		eg.Go(func() error {
			<-egCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := c.cps.Stop(shutdownCtx); err != nil {
				return fmt.Errorf("failed to stop control plane: %w", err)
			}
			return nil
		})
	}

	// engine.Start returns after the initial cycle, so this waits for ctx
	eg.Go(func() error {
		<-egCtx.Done()
		slog.Info("received interrupt signal, stopping client")
		return nil
	})

	err := eg.Wait()
	if stopErr := c.Stop(); stopErr != nil {
		err = errors.Join(err, stopErr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("bisync client failure", "error", err)
		return err
	}

	slog.Info("bisync client stopped")
	return nil
}

// Stop persists sync metadata and releases the backend and the workspace
// lock. The control plane is stopped by Start when its context ends.
func (c *Client) Stop() error {
	var errs []error

	if err := c.engine.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := c.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close remote store: %w", err))
	}
	if err := c.workspace.Unlock(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// SyncOnce runs a single full cycle under the workspace lock and persists
// the result
func (c *Client) SyncOnce(ctx context.Context) (*sync.CycleReport, error) {
	defer c.closeStore()

	if err := c.workspace.Setup(); err != nil {
		return nil, fmt.Errorf("failed to setup workspace: %w", err)
	}
	defer c.workspace.Unlock()

	return c.engine.RunCycle(ctx)
}
