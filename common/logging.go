// Package common holds shared process-level helpers for the command
// line binaries.
package common

import (
	"log/slog"
	"os"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// LoggingOpts configures the root logger.
type LoggingOpts struct {
	// Debug enables debug level messages.
	Debug bool
	// JSON switches to JSON output.
	JSON bool
	// Service is added as a 'service' attribute to all messages.
	Service string
	// Version is added as a 'version' attribute to all messages.
	Version string
}

// SetupLogger builds the root slog logger for a binary.
func SetupLogger(opts *LoggingOpts) *slog.Logger {
	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if opts.JSON {
		handler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}

	logger := slog.New(handler)
	if opts.Service != "" {
		logger = logger.With(slog.String("service", opts.Service))
	}
	if opts.Version != "" {
		logger = logger.With(slog.String("version", opts.Version))
	}
	return logger
}
