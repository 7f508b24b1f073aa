package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

// TestInitRegistersAllMetrics is not parallel: it swaps the package vectors.
func TestInitRegistersAllMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg, "1.2.3"); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}

	RecordRequest("GET", "/v1/providers", "200")
	RecordRequestDuration("GET", "/v1/providers", "200", 0.05)
	RecordAuthFailure("invalid")
	RecordProviderRequest("addy", "domains", "ok")
	RecordCacheLookup("domains", "hit")
	RecordAliasRequest("simplelogin", "server", "created")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	names := make(map[string]bool)
	for _, mf := range families {
		names[mf.GetName()] = true
	}

	for _, want := range []string{
		"aliasd_api_requests_total",
		"aliasd_api_request_duration_seconds",
		"aliasd_api_auth_failures_total",
		"aliasd_provider_requests_total",
		"aliasd_cache_lookups_total",
		"aliasd_alias_requests_total",
		"aliasd_info",
	} {
		if !names[want] {
			t.Errorf("metric %s not registered; have %v", want, names)
		}
	}
}

func TestInitTwiceOnSameRegistryFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg, "a"); err != nil {
		t.Fatalf("first Init() failed: %v", err)
	}
	if err := Init(reg, "a"); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestGetMetricsText(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Init(reg, "9.9.9"); err != nil {
		t.Fatalf("Init() failed: %v", err)
	}
	RecordCacheLookup("catch_all", "miss")

	text, err := GetMetricsText(reg)
	if err != nil {
		t.Fatalf("GetMetricsText() failed: %v", err)
	}

	tests := []string{
		`aliasd_info{version="9.9.9"} 1`,
		`aliasd_cache_lookups_total{kind="catch_all",result="miss"} 1`,
	}
	for _, want := range tests {
		if !strings.Contains(text, want) {
			t.Errorf("metrics text missing %q\n%s", want, text)
		}
	}
}

func TestHandlerForServesRegistry(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "handler_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Inc()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "handler_test_total 1") {
		t.Errorf("metrics body missing counter:\n%s", w.Body.String())
	}
}
