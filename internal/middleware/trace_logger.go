package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// RequestIDHeader is echoed on every response so reporters can quote it.
const RequestIDHeader = "X-Request-ID"

type loggerKey struct{}

// WithTraceLogger stores a per-request logger in the context. The logger
// carries the request id (taken from the client or generated) and, when a
// span is active, the trace and span IDs.
func WithTraceLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" || len(id) > 64 {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)

			fields := []zap.Field{zap.String("request_id", id)}
			fields = append(fields, spanFields(r.Context())...)
			r = r.WithContext(context.WithValue(r.Context(), loggerKey{}, logger.With(fields...)))
			next.ServeHTTP(w, r)
		})
	}
}

func spanFields(ctx context.Context) []zap.Field {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return nil
	}
	return []zap.Field{
		zap.String("trace_id", sc.TraceID().String()),
		zap.String("span_id", sc.SpanID().String()),
	}
}

// LoggerFromContext returns the request logger, or fallback annotated with
// any span found in ctx.
func LoggerFromContext(ctx context.Context, fallback *zap.Logger) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	if fields := spanFields(ctx); fields != nil {
		return fallback.With(fields...)
	}
	return fallback
}

func LoggerFromRequest(r *http.Request, fallback *zap.Logger) *zap.Logger {
	return LoggerFromContext(r.Context(), fallback)
}
