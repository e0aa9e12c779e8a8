package app

import (
	"context"
	"log/slog"
	"os"

	"github.com/kiranaflow/kiranaflow/internal/shared"
)

// NewLogger returns a configured slog.Logger based on configuration.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && cfg.LogFormat == "pretty" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
}

// WithCorrelation returns a logger enriched with the ambient correlation id
// carried on ctx, so every log line emitted while handling a request or job
// can be grep'd back to the request that produced it.
func WithCorrelation(ctx context.Context, logger *slog.Logger) *slog.Logger {
	return logger.With(slog.String("correlation_id", shared.CorrelationIDFromContext(ctx)))
}
