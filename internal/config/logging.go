package config

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a structured logger from the logging config. When
// stdoutReserved is set, stdout carries command output and logs go to stderr.
func NewLogger(cfg *LoggingConfig, stdoutReserved bool) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Output == "stderr" || stdoutReserved {
		out = os.Stderr
	}
	return newLogger(cfg, out)
}

func newLogger(cfg *LoggingConfig, out io.Writer) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}
