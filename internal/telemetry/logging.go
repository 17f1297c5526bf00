// Package telemetry sets up structured logging and OpenTelemetry
// tracing for the gateway: ambient logging via log/slog, optional
// span export via OTLP.
package telemetry

import (
	"log/slog"
	"os"
)

// NewLogger builds the gateway's slog.Logger: a text handler on
// stdout, level gated by verbose (Debug vs Info), installed as the
// process default.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
