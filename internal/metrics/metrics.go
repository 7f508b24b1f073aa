// Package metrics provides Prometheus metrics for the alias daemon.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aliasd"

var (
	// Stored in atomics so the record functions stay no-ops until Init runs.
	requestsTotal         atomic.Pointer[prometheus.CounterVec]
	requestDuration       atomic.Pointer[prometheus.HistogramVec]
	authFailuresTotal     atomic.Pointer[prometheus.CounterVec]
	providerRequestsTotal atomic.Pointer[prometheus.CounterVec]
	cacheLookupsTotal     atomic.Pointer[prometheus.CounterVec]
	aliasRequestsTotal    atomic.Pointer[prometheus.CounterVec]
)

// Init registers all metrics with reg. Call once at startup.
func Init(reg prometheus.Registerer, version string) error {
	requestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the local API",
		},
		[]string{"method", "route", "status"},
	)
	if err := reg.Register(requestsTotalVec); err != nil {
		return fmt.Errorf("failed to register requestsTotal: %w", err)
	}

	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "request_duration_seconds",
			Help:      "Local API request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
	if err := reg.Register(requestDurationVec); err != nil {
		return fmt.Errorf("failed to register requestDuration: %w", err)
	}

	authFailuresTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "auth_failures_total",
			Help:      "Total number of rejected access tokens",
		},
		[]string{"reason"},
	)
	if err := reg.Register(authFailuresTotalVec); err != nil {
		return fmt.Errorf("failed to register authFailuresTotal: %w", err)
	}

	providerRequestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "provider",
			Name:      "requests_total",
			Help:      "Upstream provider API calls by operation and outcome",
		},
		[]string{"provider", "operation", "result"},
	)
	if err := reg.Register(providerRequestsTotalVec); err != nil {
		return fmt.Errorf("failed to register providerRequestsTotal: %w", err)
	}

	cacheLookupsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Domain cache lookups by kind (domains, catch_all) and result (hit, miss)",
		},
		[]string{"kind", "result"},
	)
	if err := reg.Register(cacheLookupsTotalVec); err != nil {
		return fmt.Errorf("failed to register cacheLookupsTotal: %w", err)
	}

	aliasRequestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alias",
			Name:      "requests_total",
			Help:      "Alias previews and submissions by provider, generation mode and result",
		},
		[]string{"provider", "mode", "result"},
	)
	if err := reg.Register(aliasRequestsTotalVec); err != nil {
		return fmt.Errorf("failed to register aliasRequestsTotal: %w", err)
	}

	infoGaugeVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "info",
			Help:      "Daemon version information",
		},
		[]string{"version"},
	)
	if err := reg.Register(infoGaugeVec); err != nil {
		return fmt.Errorf("failed to register infoGauge: %w", err)
	}
	infoGaugeVec.WithLabelValues(version).Set(1)

	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	authFailuresTotal.Store(authFailuresTotalVec)
	providerRequestsTotal.Store(providerRequestsTotalVec)
	cacheLookupsTotal.Store(cacheLookupsTotalVec)
	aliasRequestsTotal.Store(aliasRequestsTotalVec)

	return nil
}

// RecordRequest counts one local API request. route is the chi route
// pattern, never the raw path.
func RecordRequest(method, route, status string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, route, status).Inc()
	}
}

// RecordRequestDuration observes the latency of one local API request.
func RecordRequestDuration(method, route, status string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, route, status).Observe(durationSeconds)
	}
}

// RecordAuthFailure counts a rejected access token ("missing", "invalid").
func RecordAuthFailure(reason string) {
	if counter := authFailuresTotal.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// RecordProviderRequest counts one upstream call, e.g.
// ("addy", "usernames", "error").
func RecordProviderRequest(provider, operation, result string) {
	if counter := providerRequestsTotal.Load(); counter != nil {
		counter.WithLabelValues(provider, operation, result).Inc()
	}
}

// RecordCacheLookup counts a domain cache hit or miss.
func RecordCacheLookup(kind, result string) {
	if counter := cacheLookupsTotal.Load(); counter != nil {
		counter.WithLabelValues(kind, result).Inc()
	}
}

// RecordAliasRequest counts a preview or submission outcome.
func RecordAliasRequest(provider, mode, result string) {
	if counter := aliasRequestsTotal.Load(); counter != nil {
		counter.WithLabelValues(provider, mode, result).Inc()
	}
}

// HandlerFor returns the Prometheus handler for a specific registry.
func HandlerFor(reg prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// GetMetricsText returns the text exposition of reg. Used in tests.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	HandlerFor(reg).ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}
	return string(body), nil
}
