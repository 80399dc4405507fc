package observe

import (
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// TraceHeader carries the request's trace ID back to the caller.
const TraceHeader = "X-Trace-ID"

// knownRoutes are the paths served by the diagnostics server. Anything else
// is reported under the "other" route so a port scan cannot blow up the
// metric's label set.
var knownRoutes = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

func route(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}

// responseWriter remembers the status code and body size written downstream.
type responseWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *responseWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}

// Middleware instruments the diagnostics server: one server span per
// request (continuing an incoming W3C traceparent), the trace ID echoed in
// [TraceHeader], [Metrics.HTTPRequestDuration] by method and route, and one
// log line. Probe and scrape traffic logs at debug, server errors at warn.
func Middleware(m *Metrics) func(http.Handler) http.Handler {
	var prop propagation.TraceContext

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rt := route(r.URL.Path)

			ctx := prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := StartSpan(ctx, "diagnostics "+rt,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(rt),
				),
			)
			defer span.End()

			traceID := CorrelationID(ctx)
			if traceID != "" {
				w.Header().Set(TraceHeader, traceID)
			}

			rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rw, r.WithContext(ctx))

			elapsed := time.Since(start)
			m.HTTPRequestDuration.Record(ctx, elapsed.Seconds(),
				metric.WithAttributes(Attr("method", r.Method), Attr("route", rt)),
			)
			span.SetAttributes(semconv.HTTPResponseStatusCode(rw.status))

			level := slog.LevelDebug
			switch {
			case rw.status >= http.StatusInternalServerError:
				level = slog.LevelWarn
			case rt == "other":
				level = slog.LevelInfo
			}
			Logger(ctx).LogAttrs(ctx, level, "diagnostics request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rw.status),
				slog.Int("bytes", rw.bytes),
				slog.Duration("elapsed", elapsed),
			)
		})
	}
}
