package middleware

import (
	"fmt"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultTracerName = "github.com/MrEthical07/catfeed/middleware"

// TracingConfig configures the tracing middleware.
type TracingConfig struct {
	// Provider supplies the tracer. Default: the global provider.
	Provider trace.TracerProvider
}

// TracingOption configures the tracing middleware.
type TracingOption func(*TracingConfig)

func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) { c.Provider = tp }
}

// Tracing starts a server span per request named after the matched route.
// The session middlewares add the resolved role to the span.
func Tracing(opts ...TracingOption) func(http.Handler) http.Handler {
	var cfg TracingConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Provider == nil {
		cfg.Provider = otel.GetTracerProvider()
	}
	tracer := cfg.Provider.Tracer(defaultTracerName)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), r.Method,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.request.method", r.Method),
					attribute.String("url.path", r.URL.Path),
				),
			)
			defer span.End()

			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			r = r.WithContext(ctx)
			next.ServeHTTP(ww, r)

			route := routePattern(r)
			span.SetName(fmt.Sprintf("%s %s", r.Method, route))
			span.SetAttributes(attribute.String("http.route", route))

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			span.SetAttributes(attribute.Int("http.response.status_code", status))
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
		})
	}
}
