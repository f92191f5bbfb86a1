package status

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// LogReporter writes every event through a slog.Logger. Status lines are
// logged at debug level and only when they change.
type LogReporter struct {
	logger *slog.Logger

	mu         sync.Mutex
	lastStatus string
	idleUntil  time.Time
}

func NewLogReporter(logger *slog.Logger) *LogReporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogReporter{logger: logger}
}

func (r *LogReporter) LogEvent(level slog.Level, msg string, args ...any) {
	r.logger.Log(context.Background(), level, msg, args...)
}

func (r *LogReporter) UpdateStatus(text string) {
	r.mu.Lock()
	changed := text != r.lastStatus
	r.lastStatus = text
	r.mu.Unlock()

	if changed {
		r.logger.Debug("status", "text", text)
	}
}

func (r *LogReporter) StartIdleCountdown(d time.Duration) {
	next := time.Now().Add(d)

	r.mu.Lock()
	r.idleUntil = next
	r.mu.Unlock()

	r.logger.Info("idle", "nextSync", humanize.Time(next), "in", d.Round(time.Second))
}

func (r *LogReporter) StopIdleCountdown() {
	r.mu.Lock()
	r.idleUntil = time.Time{}
	r.mu.Unlock()
}

// Status returns the last status text and the idle deadline, zero when busy
func (r *LogReporter) Status() (string, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastStatus, r.idleUntil
}

var _ Reporter = (*LogReporter)(nil)
