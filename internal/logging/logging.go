// Package logging configures structured logging for ragload.
//
// Logs go to a size-rotated file as JSON and are mirrored to stderr.
// Interactive runs with no log file (stderr is a terminal) get a
// human-readable text handler instead of JSON.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Config contains logging configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// FilePath is the path to the log file. Empty means no file logging.
	FilePath string
	// MaxSizeMB is the maximum size in MB before rotation (default: 10).
	MaxSizeMB int
	// MaxFiles is the maximum number of rotated files to keep (default: 5).
	MaxFiles int
	// WriteToStderr also mirrors log output to stderr (default: true).
	WriteToStderr bool
}

// DefaultConfig returns sensible defaults for file logging.
func DefaultConfig(filePath string) Config {
	return Config{
		Level:         "info",
		FilePath:      filePath,
		MaxSizeMB:     10,
		MaxFiles:      5,
		WriteToStderr: true,
	}
}

// Setup initializes logging and returns the logger and a cleanup function.
// The cleanup function closes the log file.
func Setup(cfg Config) (*slog.Logger, func(), error) {
	level := parseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() {}

	var output io.Writer
	switch {
	case cfg.FilePath != "" && cfg.WriteToStderr:
		writer, err := NewRotatingWriter(cfg.FilePath, orDefault(cfg.MaxSizeMB, 10), orDefault(cfg.MaxFiles, 5))
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() {
			_ = writer.Sync()
			_ = writer.Close()
		}
		output = io.MultiWriter(writer, os.Stderr)
	case cfg.FilePath != "":
		writer, err := NewRotatingWriter(cfg.FilePath, orDefault(cfg.MaxSizeMB, 10), orDefault(cfg.MaxFiles, 5))
		if err != nil {
			return nil, nil, err
		}
		cleanup = func() {
			_ = writer.Sync()
			_ = writer.Close()
		}
		output = writer
	default:
		output = os.Stderr
	}

	var handler slog.Handler
	if cfg.FilePath == "" && isatty.IsTerminal(os.Stderr.Fd()) {
		handler = slog.NewTextHandler(output, opts)
	} else {
		handler = slog.NewJSONHandler(output, opts)
	}

	return slog.New(handler), cleanup, nil
}

// SetupDefault sets up logging and installs it as the default slog logger.
// Returns the cleanup function.
func SetupDefault(cfg Config) (func(), error) {
	logger, cleanup, err := Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func orDefault(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
