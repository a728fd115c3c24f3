package middleware

import (
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Default tracer name for the proxy's HTTP surface.
const defaultTracerName = "stevedore"

// Tracing wraps an HTTP handler with an OpenTelemetry span per request.
// The span is named after the method and path and records the route
// attributes; WebSocket sessions keep their upgrade span open for the
// lifetime of the handshake only.
func Tracing(next http.Handler) http.Handler {
	tracer := otel.Tracer(defaultTracerName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			))
		defer span.End()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
