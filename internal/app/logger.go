package app

import (
	"log/slog"
	"os"
)

// NewLogger builds the process-wide slog.Logger. Production always logs
// JSON; elsewhere LOG_FORMAT picks between JSON and the readable text
// handler that pairs with local development.
func NewLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: true}
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
