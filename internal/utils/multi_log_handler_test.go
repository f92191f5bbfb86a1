package utils

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiLogHandler(t *testing.T) {
	var debugBuf, warnBuf bytes.Buffer
	debug := slog.NewTextHandler(&debugBuf, &slog.HandlerOptions{Level: slog.LevelDebug})
	warn := slog.NewTextHandler(&warnBuf, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(NewMultiLogHandler(debug, nil, warn)).With("component", "test")
	logger.Info("hello")
	logger.Warn("careful")

	assert.Contains(t, debugBuf.String(), "hello")
	assert.Contains(t, debugBuf.String(), "careful")
	assert.NotContains(t, warnBuf.String(), "hello")
	assert.Contains(t, warnBuf.String(), "careful")
	assert.Contains(t, warnBuf.String(), "component=test")
}
