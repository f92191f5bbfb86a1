package sync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/AzPepoze/gdrive-bisync/internal/client/status"
	"github.com/AzPepoze/gdrive-bisync/internal/remote"
)

const (
	DefaultNetworkRetryDelay = 10 * time.Second
	DefaultRetryDelay        = time.Second
	DefaultMaxAttempts       = 100
)

var (
	ErrParentNotFound = errors.New("remote parent folder not found")
)

// TaskError is returned once an operation has exhausted its attempts or
// failed permanently. The cycle reports it and moves on.
type TaskError struct {
	Op       string
	Attempts int
	Err      error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Op, e.Attempts, e.Err)
}

func (e *TaskError) Unwrap() error {
	return e.Err
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports errors marked by Permanent and remote lookups that cannot
// succeed on retry. Auth failures retry like any other error.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p) ||
		errors.Is(err, remote.ErrNotFound) ||
		errors.Is(err, remote.ErrInvalidName)
}

// IsNetworkError reports connectivity failures that are retried without limit
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, remote.ErrTransient) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.EPIPE) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Executor runs remote operations with the retry policy:
// network errors retry forever every NetworkDelay, permanent errors fail at
// once, anything else retries every Delay up to MaxAttempts.
type Executor struct {
	NetworkDelay time.Duration
	Delay        time.Duration
	MaxAttempts  int

	reporter status.Reporter
}

func NewExecutor(networkDelay, delay time.Duration, maxAttempts int, reporter status.Reporter) *Executor {
	if networkDelay <= 0 {
		networkDelay = DefaultNetworkRetryDelay
	}
	if delay <= 0 {
		delay = DefaultRetryDelay
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if reporter == nil {
		reporter = status.Nop{}
	}
	return &Executor{
		NetworkDelay: networkDelay,
		Delay:        delay,
		MaxAttempts:  maxAttempts,
		reporter:     reporter,
	}
}

// Do calls fn until it succeeds, the policy gives up, or ctx is done
func (e *Executor) Do(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	attempts := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		err := fn(ctx)
		if err == nil {
			if attempts > 1 {
				slog.Debug("retry succeeded", "op", name, "attempts", attempts)
			}
			return nil
		}

		// a cancelled operation surfaces as the context error, not a task failure
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		var delay time.Duration
		switch {
		case IsPermanent(err):
			return &TaskError{Op: name, Attempts: attempts, Err: err}

		case IsNetworkError(err):
			delay = e.NetworkDelay
			e.reporter.LogEvent(slog.LevelWarn, "network error, retrying", "op", name, "attempt", attempts, "in", delay, "error", err)

		case attempts >= e.MaxAttempts:
			return &TaskError{Op: name, Attempts: attempts, Err: err}

		default:
			delay = e.Delay
			slog.Warn("operation failed, retrying", "op", name, "attempt", attempts, "of", e.MaxAttempts, "error", err)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
