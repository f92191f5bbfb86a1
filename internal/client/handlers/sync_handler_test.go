package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AzPepoze/gdrive-bisync/internal/client/sync"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSyncRouter(svc SyncService) *gin.Engine {
	h := NewSyncHandler(svc)
	r := gin.New()
	r.POST("/v1/sync", h.TriggerSync)
	r.GET("/v1/sync/status", h.Status)
	r.GET("/v1/sync/status/file", h.StatusByPath)
	return r
}

func doRequest(r http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestSyncHandler_TriggerSync(t *testing.T) {
	svc := newFakeService()
	r := newSyncRouter(svc)

	w := doRequest(r, http.MethodPost, "/v1/sync")

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"code":"OK"}`, w.Body.String())
	assert.EqualValues(t, 1, svc.triggers.Load())
}

func TestSyncHandler_TriggerSync_Busy(t *testing.T) {
	svc := newFakeService()
	svc.running.Store(true)
	r := newSyncRouter(svc)

	w := doRequest(r, http.MethodPost, "/v1/sync")

	assert.Equal(t, http.StatusConflict, w.Code)
	var resp ControlPlaneError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, ErrCodeSyncInProgress, resp.ErrorCode)
	assert.Zero(t, svc.triggers.Load())
}

func TestSyncHandler_NoEngine(t *testing.T) {
	r := newSyncRouter(nil)

	for _, target := range []string{"/v1/sync/status", "/v1/sync/status/file?path=a.txt"} {
		w := doRequest(r, http.MethodGet, target)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code, target)
	}
	w := doRequest(r, http.MethodPost, "/v1/sync")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSyncHandler_Status(t *testing.T) {
	svc := newFakeService()
	require.True(t, svc.status.TrySetSyncing("b/busy.txt", sync.ActionDownloadUpdate))
	svc.status.SetError("a/broken.txt", errors.New("quota exceeded"))
	require.True(t, svc.status.TrySetSyncing("c.txt", sync.ActionUploadConflict))
	svc.status.SetCompleted("c.txt")
	require.True(t, svc.status.TrySetSyncing("clean.txt", sync.ActionUploadNew))
	svc.status.SetCompleted("clean.txt")

	w := doRequest(newSyncRouter(svc), http.MethodGet, "/v1/sync/status")
	require.Equal(t, http.StatusOK, w.Code)

	var resp SyncStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	require.Len(t, resp.Files, 3)
	assert.Equal(t, "a/broken.txt", resp.Files[0].Path)
	assert.Equal(t, "quota exceeded", resp.Files[0].Error)
	assert.Equal(t, "b/busy.txt", resp.Files[1].Path)
	assert.Equal(t, string(sync.ActionDownloadUpdate), resp.Files[1].Action)
	assert.Equal(t, "c.txt", resp.Files[2].Path)
	assert.Equal(t, SyncSummary{Syncing: 1, Completed: 1, Error: 1, Conflicted: 1}, resp.Summary)
}

func TestSyncHandler_StatusByPath(t *testing.T) {
	svc := newFakeService()
	svc.status.SetError("broken.txt", errors.New("boom"))
	r := newSyncRouter(svc)

	w := doRequest(r, http.MethodGet, "/v1/sync/status/file?path=broken.txt")
	require.Equal(t, http.StatusOK, w.Code)
	var file SyncFileStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &file))
	assert.Equal(t, string(sync.SyncStateError), file.State)
	assert.Equal(t, 1, file.ErrorCount)

	w = doRequest(r, http.MethodGet, "/v1/sync/status/file")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(r, http.MethodGet, "/v1/sync/status/file?path=unknown.txt")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
