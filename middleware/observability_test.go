package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestHTTPMetricsLabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(WithRegistry(reg))

	r := chi.NewRouter()
	r.Use(m.Handler)
	r.Get("/uploads/{key}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, path := range []string{"/uploads/a", "/uploads/b", "/"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/uploads/{key}", "404")); got != 2 {
		t.Fatalf("expected 2 upload requests, got %v", got)
	}
	if got := testutil.ToFloat64(m.requests.WithLabelValues("GET", "/", "200")); got != 1 {
		t.Fatalf("expected 1 root request, got %v", got)
	}
	if got := testutil.CollectAndCount(m.duration); got != 2 {
		t.Fatalf("expected 2 duration series, got %d", got)
	}
	if got := testutil.ToFloat64(m.inFlight); got != 0 {
		t.Fatalf("expected no in-flight requests, got %v", got)
	}
}

func TestHTTPMetricsDoubleRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	_ = NewHTTPMetrics(WithRegistry(reg))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	_ = NewHTTPMetrics(WithRegistry(reg))
}

func TestTracingNamesSpanAfterRoute(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(Tracing(WithTracerProvider(tp)))
	r.Get("/posts", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/boom", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/posts", nil))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	spans := recorder.Ended()
	if len(spans) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(spans))
	}
	if spans[0].Name() != "GET /posts" {
		t.Fatalf("unexpected span name %q", spans[0].Name())
	}
	if !hasAttr(spans[0].Attributes(), attribute.Int("http.response.status_code", 200)) {
		t.Fatalf("missing status attribute: %v", spans[0].Attributes())
	}
	if spans[1].Status().Code != codes.Error {
		t.Fatalf("expected error status for 500, got %v", spans[1].Status())
	}
}

func TestTracingRecordsSessionRole(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	engine := newTestEngine(t)

	r := chi.NewRouter()
	r.Use(Tracing(WithTracerProvider(tp)))
	r.With(LoadSession(engine)).Get("/", func(w http.ResponseWriter, _ *http.Request) {})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	if !hasAttr(spans[0].Attributes(), attribute.String("catfeed.session.role", "publicViewer")) {
		t.Fatalf("missing role attribute: %v", spans[0].Attributes())
	}
}

func hasAttr(attrs []attribute.KeyValue, want attribute.KeyValue) bool {
	for _, kv := range attrs {
		if kv.Key == want.Key && kv.Value == want.Value {
			return true
		}
	}
	return false
}
