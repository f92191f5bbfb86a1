package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/handlers"
	"github.com/AzPepoze/gdrive-bisync/internal/client/sync"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStatusServer(t *testing.T, token string, resp *handlers.StatusResponse) *httptest.Server {
	t.Helper()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/v1/status", func(c *gin.Context) {
		if c.GetHeader("Authorization") != "Bearer "+token {
			c.JSON(http.StatusUnauthorized, handlers.ControlPlaneError{ErrorCode: "ERR_UNAUTHORIZED", Error: "unauthorized"})
			return
		}
		c.JSON(http.StatusOK, resp)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusCommand(t *testing.T) {
	next := time.Now().Add(time.Minute)
	srv := newStatusServer(t, "secret", &handlers.StatusResponse{
		Status:   "ok",
		Version:  "1.2.3",
		Revision: "abc123",
		Runtime:  &handlers.RuntimeInfo{PID: 42, Uptime: "5m0s", MemRSS: 8 << 20},
		Sync: &handlers.SyncInfo{
			NextCycleAt: &next,
			Errors:      2,
			LastCycle: &sync.CycleReport{
				StartedAt: time.Now().Add(-time.Minute),
				Actions:   map[sync.SyncAction]int{sync.ActionUploadNew: 3},
				Failed:    1,
			},
		},
	})
	path, _ := writeConfig(t, map[string]any{"http": map[string]any{"token": "secret"}})

	out, err := runCmd(t, "status", "-c", path, "--url", srv.URL)
	require.NoError(t, err)

	assert.Contains(t, out, "bisync 1.2.3 (abc123)")
	assert.Contains(t, out, "pid 42")
	assert.Contains(t, out, "8.0 MiB")
	assert.Contains(t, out, "state: idle, next cycle")
	assert.Contains(t, out, "errors 2")
	assert.Contains(t, out, "3 task(s), 1 failed")
}

func TestStatusCommand_JSON(t *testing.T) {
	srv := newStatusServer(t, "secret", &handlers.StatusResponse{Status: "ok", Version: "1.2.3"})
	path, _ := writeConfig(t, map[string]any{"http": map[string]any{"token": "secret"}})

	out, err := runCmd(t, "status", "-c", path, "--url", srv.URL, "--json")
	require.NoError(t, err)
	assert.Contains(t, out, `"version":"1.2.3"`)
}

func TestStatusCommand_Unauthorized(t *testing.T) {
	srv := newStatusServer(t, "secret", &handlers.StatusResponse{Status: "ok"})
	path, _ := writeConfig(t, nil)

	_, err := runCmd(t, "status", "-c", path, "--url", srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unauthorized")
}
