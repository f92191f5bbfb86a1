// Package status is the user-facing side channel of the sync engine: log
// events, a one-line status and the countdown to the next cycle.
package status

import (
	"log/slog"
	"time"
)

// Reporter receives user-visible progress. Implementations must be safe for
// concurrent use; the engine and the watcher call it from many goroutines.
type Reporter interface {
	LogEvent(level slog.Level, msg string, args ...any)
	UpdateStatus(text string)
	StartIdleCountdown(d time.Duration)
	StopIdleCountdown()
}

// Nop discards everything
type Nop struct{}

func (Nop) LogEvent(slog.Level, string, ...any) {}
func (Nop) UpdateStatus(string)                 {}
func (Nop) StartIdleCountdown(time.Duration)    {}
func (Nop) StopIdleCountdown()                  {}

var _ Reporter = Nop{}
