package handlers

import (
	"errors"
	"net/http"
	"slices"
	"strings"

	"github.com/AzPepoze/gdrive-bisync/internal/client/sync"
	"github.com/gin-gonic/gin"
)

type SyncHandler struct {
	svc SyncService
}

func NewSyncHandler(svc SyncService) *SyncHandler {
	return &SyncHandler{svc: svc}
}

// Status godoc
//
//	@Summary		Get sync status
//	@Description	Returns the tracked status of every in-flight, failed or conflicted path
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	SyncStatusResponse
//	@Failure		503	{object}	ControlPlaneError
//	@Router			/v1/sync/status [get]
func (h *SyncHandler) Status(c *gin.Context) {
	if h.svc == nil {
		abortNotReady(c)
		return
	}

	allStatus := h.svc.Status().GetAllStatus()

	files := make([]SyncFileStatus, 0, len(allStatus))
	var summary SyncSummary

	for path, status := range allStatus {
		files = append(files, toFileStatus(path, status))

		switch status.SyncState {
		case sync.SyncStatePending:
			summary.Pending++
		case sync.SyncStateSyncing:
			summary.Syncing++
		case sync.SyncStateCompleted:
			summary.Completed++
		case sync.SyncStateError:
			summary.Error++
		}
		if status.ConflictState == sync.ConflictStateConflicted {
			summary.Conflicted++
		}
	}

	slices.SortFunc(files, func(a, b SyncFileStatus) int {
		return strings.Compare(a.Path, b.Path)
	})

	c.PureJSON(http.StatusOK, SyncStatusResponse{
		Files:   files,
		Summary: summary,
	})
}

// StatusByPath godoc
//
//	@Summary		Get sync status for a specific path
//	@Tags			sync
//	@Produce		json
//	@Param			path	query		string	true	"File path relative to the synced root"
//	@Success		200		{object}	SyncFileStatus
//	@Failure		400		{object}	ControlPlaneError
//	@Failure		404		{object}	ControlPlaneError
//	@Router			/v1/sync/status/file [get]
func (h *SyncHandler) StatusByPath(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		AbortWithError(c, http.StatusBadRequest, ErrCodeBadRequest, errors.New("path is required"))
		return
	}

	if h.svc == nil {
		abortNotReady(c)
		return
	}

	status, exists := h.svc.Status().GetStatus(path)
	if !exists {
		AbortWithError(c, http.StatusNotFound, ErrCodeNotFound, errors.New("path not found in sync status"))
		return
	}

	c.PureJSON(http.StatusOK, toFileStatus(path, status))
}

// TriggerSync godoc
//
//	@Summary		Trigger immediate sync
//	@Description	Schedules a full cycle now. Rejected while a cycle is running.
//	@Tags			sync
//	@Produce		json
//	@Success		202	{object}	ControlPlaneResponse
//	@Failure		409	{object}	ControlPlaneError
//	@Router			/v1/sync [post]
func (h *SyncHandler) TriggerSync(c *gin.Context) {
	if h.svc == nil {
		abortNotReady(c)
		return
	}

	if h.svc.IsRunning() {
		AbortWithError(c, http.StatusConflict, ErrCodeSyncInProgress, sync.ErrSyncAlreadyRunning)
		return
	}

	h.svc.Trigger()
	c.PureJSON(http.StatusAccepted, ControlPlaneResponse{Code: CodeOk})
}

func toFileStatus(path string, status *sync.PathStatus) SyncFileStatus {
	return SyncFileStatus{
		Path:          path,
		State:         string(status.SyncState),
		ConflictState: string(status.ConflictState),
		Action:        string(status.Action),
		Progress:      status.Progress * 100.0,
		Error:         status.ErrorMessage,
		ErrorCount:    status.ErrorCount,
		UpdatedAt:     status.LastUpdated,
	}
}
