package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/smazurov/gpionode/internal/logging"
)

// HTTPLoggingMiddleware logs each request at a level chosen by its outcome.
// Reads are frequent dashboard polls and log at debug; commands log at info.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	next(ctx)

	method := ctx.Method()
	status := ctx.Status()
	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", ctx.URL().Path),
		slog.String("remote_addr", ctx.RemoteAddr()),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	}
	if op := ctx.Operation(); op != nil {
		attrs = append(attrs, slog.String("operation", op.OperationID))
	}
	if ua := ctx.Header("User-Agent"); ua != "" {
		attrs = append(attrs, slog.String("user_agent", ua))
	}

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	case method == http.MethodGet, method == http.MethodOptions:
		level = slog.LevelDebug
	}
	logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}
