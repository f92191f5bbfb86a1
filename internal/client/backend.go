package client

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/AzPepoze/gdrive-bisync/internal/client/config"
	"github.com/AzPepoze/gdrive-bisync/internal/remote"
	"github.com/AzPepoze/gdrive-bisync/internal/remote/drive"
	"github.com/AzPepoze/gdrive-bisync/internal/remote/localstore"
	"github.com/AzPepoze/gdrive-bisync/internal/remote/s3store"
)

// NewRemoteStore builds the backend selected by cfg.Backend. The returned
// close func releases backend resources and is never nil.
func NewRemoteStore(ctx context.Context, cfg *config.Config) (remote.Store, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Backend {
	case config.BackendDrive:
		tokens, err := drive.TokenSource(ctx, cfg.Drive.TokenFile)
		if err != nil {
			return nil, nil, err
		}
		store, err := drive.New(drive.Options{
			BaseURL:     cfg.Drive.BaseURL,
			UploadURL:   cfg.Drive.UploadURL,
			TokenSource: tokens,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("remote backend", "type", cfg.Backend, "url", cfg.Drive.BaseURL)
		return store, noop, nil

	case config.BackendS3:
		store, err := s3store.New(ctx, s3store.Options{
			Bucket:       cfg.S3.Bucket,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			AccessKey:    cfg.S3.AccessKey,
			SecretKey:    cfg.S3.SecretKey,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, nil, err
		}
		slog.Info("remote backend", "type", cfg.Backend, "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
		return store, noop, nil

	case config.BackendLocal:
		store, err := localstore.Open(cfg.LocalStore.Dir, cfg.RemoteRootID)
		if err != nil {
			return nil, nil, err
		}
		slog.Info("remote backend", "type", cfg.Backend, "dir", cfg.LocalStore.Dir)
		if cfg.BackendIsDefault {
			slog.Warn("no backend configured, syncing to a local directory store; set backend to drive to sync with Google Drive", "dir", cfg.LocalStore.Dir)
		}
		return store, store.Close, nil
	}

	return nil, nil, &config.Error{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
}
