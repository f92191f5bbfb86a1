package handlers

import (
	"net/http"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/sync"
	"github.com/gin-gonic/gin"
)

const (
	CodeOk                string = "OK"
	ErrCodeBadRequest     string = "ERR_BAD_REQUEST"
	ErrCodeNotFound       string = "ERR_NOT_FOUND"
	ErrCodeUnknownError   string = "ERR_UNKNOWN_ERROR"
	ErrCodeEngineNotReady string = "ERR_ENGINE_NOT_READY"
	ErrCodeSyncInProgress string = "ERR_SYNC_IN_PROGRESS"
)

// SyncService is the part of the sync engine the control plane reads and drives
type SyncService interface {
	IsRunning() bool
	Trigger()
	LastReport() *sync.CycleReport
	NextCycleAt() time.Time
	Status() *sync.SyncStatus
}

type ControlPlaneResponse struct {
	Code string `json:"code"`
}

type ControlPlaneError struct {
	ErrorCode string `json:"code"`
	Error     string `json:"error"`
}

func AbortWithError(c *gin.Context, status int, code string, err error) {
	c.Abort()
	c.Error(err)
	c.PureJSON(status, ControlPlaneError{
		ErrorCode: code,
		Error:     err.Error(),
	})
}

func abortNotReady(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, ControlPlaneError{
		ErrorCode: ErrCodeEngineNotReady,
		Error:     "sync engine not initialized",
	})
}
