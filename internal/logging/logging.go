// Package logging builds the slog loggers shared by the console binaries.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for log files.
const (
	maxSizeMB  = 25
	maxBackups = 10
	maxAgeDays = 14
)

// ParseLevel maps a config level name to a slog level. Unknown names mean info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger writing to console and to a rotated file at filename.
// The returned closer releases the file.
func New(level, filename string, console io.Writer) (*slog.Logger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0o755); err != nil {
		return nil, nil, err
	}
	file := &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		MaxAge:     maxAgeDays,
		Compress:   true,
	}
	if console == nil {
		console = io.Discard
	}
	h := slog.NewTextHandler(io.MultiWriter(console, file), &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h), file, nil
}

// Setup installs New's logger as the slog default.
func Setup(level, filename string, console io.Writer) (io.Closer, error) {
	logger, closer, err := New(level, filename, console)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closer, nil
}
