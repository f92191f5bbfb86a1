package handlers

import (
	"sync/atomic"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/sync"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	running  atomic.Bool
	triggers atomic.Int32
	next     time.Time
	report   *sync.CycleReport
	status   *sync.SyncStatus
}

func newFakeService() *fakeService {
	return &fakeService{status: sync.NewSyncStatus()}
}

func (f *fakeService) IsRunning() bool               { return f.running.Load() }
func (f *fakeService) Trigger()                      { f.triggers.Add(1) }
func (f *fakeService) LastReport() *sync.CycleReport { return f.report }
func (f *fakeService) NextCycleAt() time.Time        { return f.next }
func (f *fakeService) Status() *sync.SyncStatus      { return f.status }
