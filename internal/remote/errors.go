package remote

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrNotFound     = errors.New("remote: not found")
	ErrTransient    = errors.New("remote: transient failure")
	ErrUnauthorized = errors.New("remote: unauthorized")
	ErrInvalidName  = errors.New("remote: invalid name")
)

// APIError is a failed call against a backend. It unwraps to ErrNotFound,
// ErrTransient or ErrUnauthorized depending on the status so callers can
// classify with errors.Is.
type APIError struct {
	Op         string
	StatusCode int
	Message    string
	// Reason is the backend's machine readable cause, e.g. Drive's "userRateLimitExceeded"
	Reason string
}

func NewAPIError(op string, status int, message string) *APIError {
	return &APIError{Op: op, StatusCode: status, Message: message}
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote %s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("remote %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusForbidden && e.isRateLimit():
		return ErrTransient
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode >= 500:
		return ErrTransient
	default:
		return nil
	}
}

// Drive answers throttling with 403 and a rateLimitExceeded style reason
func (e *APIError) isRateLimit() bool {
	if strings.HasSuffix(e.Reason, "RateLimitExceeded") || e.Reason == "rateLimitExceeded" {
		return true
	}
	return strings.Contains(strings.ToLower(e.Message), "rate limit exceeded")
}
