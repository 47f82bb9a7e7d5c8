package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/datawise/datawise/internal/config"
)

type ctxKey string

const (
	traceIDKey   ctxKey = "trace_id"
	sessionIDKey ctxKey = "session_id"
	datasetIDKey ctxKey = "dataset_id"
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	options := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, options)
	} else {
		handler = slog.NewTextHandler(writer, options)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// LoggerOrDiscard returns logger, or a logger that drops everything when nil.
func LoggerOrDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(traceIDKey).(string)
	return value
}

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(sessionIDKey).(string)
	return value
}

func ContextWithDatasetID(ctx context.Context, datasetID string) context.Context {
	return context.WithValue(ctx, datasetIDKey, datasetID)
}

func DatasetIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(datasetIDKey).(string)
	return value
}

// RequestAttrs returns the trace, session and dataset attributes carried by ctx.
func RequestAttrs(ctx context.Context) []any {
	attrs := make([]any, 0, 3)
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		attrs = append(attrs, slog.String("session_id", sessionID))
	}
	if datasetID := DatasetIDFromContext(ctx); datasetID != "" {
		attrs = append(attrs, slog.String("dataset_id", datasetID))
	}
	return attrs
}
