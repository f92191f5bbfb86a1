package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/AzPepoze/gdrive-bisync/internal/utils"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"gopkg.in/natefinch/lumberjack.v2"
)

const logFileName = "bisync.log"

// setupLogging installs the default slog logger: a rotating text log in
// logDir plus, when stdout is true, a tint handler on stdout
func setupLogging(logDir string, stdout bool, debug bool) (func() error, error) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	var handlers []slog.Handler

	if stdout {
		handlers = append(handlers, tint.NewHandler(os.Stdout, &tint.Options{
			Level:      level,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
		}))
	}

	closeFn := func() error { return nil }
	if logDir != "" {
		if err := utils.EnsureDir(logDir); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(logDir, logFileName),
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     14, // days
			Compress:   true,
		}
		handlers = append(handlers, slog.NewTextHandler(rotator, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		closeFn = rotator.Close
	}

	slog.SetDefault(slog.New(utils.NewMultiLogHandler(handlers...)))
	return closeFn, nil
}
