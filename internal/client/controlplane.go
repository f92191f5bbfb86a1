package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/handlers"
	"github.com/AzPepoze/gdrive-bisync/internal/client/middleware"
	"github.com/AzPepoze/gdrive-bisync/internal/utils"
)

type ControlPlaneServer struct {
	config *ControlPlaneConfig
	server *http.Server
}

func NewControlPlaneServer(config *ControlPlaneConfig, svc handlers.SyncService) (*ControlPlaneServer, error) {
	if _, err := addrToURL(config.Addr); err != nil {
		return nil, err
	}

	routes := SetupRoutes(svc, &RouteConfig{
		Auth: middleware.TokenAuthConfig{
			Token: config.AuthToken,
		},
	})

	httpServer := &http.Server{
		Addr:    config.Addr,
		Handler: routes,
		// no WriteTimeout: /v1/events is a long-lived websocket
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MB
	}

	return &ControlPlaneServer{
		config: config,
		server: httpServer,
	}, nil
}

// Start blocks until the server is shut down
func (s *ControlPlaneServer) Start(ctx context.Context) error {
	url, _ := addrToURL(s.config.Addr)
	slog.Info("control plane start", "addr", url, "token", utils.MaskSecret(s.config.AuthToken))
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

func (s *ControlPlaneServer) Stop(ctx context.Context) error {
	slog.Info("control plane stop")
	return s.server.Shutdown(ctx)
}

// ControlPlaneURL returns the URL a local client should use to reach addr
func ControlPlaneURL(addr string) (string, error) {
	return addrToURL(addr)
}

// addrToURL turns a listen address into a dialable http URL. A missing host
// means every interface, which is reachable on loopback.
func addrToURL(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("invalid control plane address %q: %w", addr, err)
	}
	if port == "" {
		return "", fmt.Errorf("invalid control plane address %q: missing port", addr)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port), nil
}
