package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
)

func TestStatusRecorder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		handle func(w http.ResponseWriter)
		want   int
	}{
		{"implicit 200", func(w http.ResponseWriter) { _, _ = w.Write([]byte("ok")) }, http.StatusOK},
		{"explicit 404", func(w http.ResponseWriter) { w.WriteHeader(http.StatusNotFound) }, http.StatusNotFound},
		{"first header wins", func(w http.ResponseWriter) {
			w.WriteHeader(http.StatusBadGateway)
			w.WriteHeader(http.StatusOK)
		}, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := &statusRecorder{ResponseWriter: httptest.NewRecorder(), statusCode: http.StatusOK}
			tt.handle(rec)
			if rec.statusCode != tt.want {
				t.Errorf("statusCode = %d, want %d", rec.statusCode, tt.want)
			}
		})
	}
}

func TestRoutePatternFallback(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/nowhere", nil)
	if got := routePattern(req); got != "unmatched" {
		t.Errorf("routePattern() = %q, want unmatched", got)
	}
}

// TestMiddlewareLabelsByRoutePattern is not parallel: it re-runs Init.
func TestMiddlewareLabelsByRoutePattern(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg, "test"); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/providers/{id}/domains/{domain}/catch-all", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, domain := range []string{"a.example", "b.example", "c.example"} {
		req := httptest.NewRequest(http.MethodGet, "/v1/providers/addy/domains/"+domain+"/catch-all", nil)
		r.ServeHTTP(httptest.NewRecorder(), req)
	}

	text, err := GetMetricsText(reg)
	if err != nil {
		t.Fatalf("GetMetricsText() failed: %v", err)
	}
	want := `aliasd_api_requests_total{method="GET",route="/v1/providers/{id}/domains/{domain}/catch-all",status="200"} 3`
	if !strings.Contains(text, want) {
		t.Errorf("metrics text missing %q\n%s", want, text)
	}
	if strings.Contains(text, "a.example") {
		t.Error("raw domain leaked into route label")
	}
}
