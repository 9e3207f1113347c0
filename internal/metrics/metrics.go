package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

const namespace = "oauth2"

// slowRequest is the duration above which the middleware logs a warning.
const slowRequest = time.Second

// endpoints maps routed paths to label values; anything else is "other".
var endpoints = map[string]string{
	"/health":             "health",
	"/metrics":            "metrics",
	"/version":            "version",
	"/connect/token":      "token",
	"/connect/introspect": "introspect",
	"/connect/revocation": "revocation",
}

// MetricsCollector owns the Prometheus series exported by the token server.
type MetricsCollector struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpLatency  *prometheus.HistogramVec

	tokenRequests       *prometheus.CounterVec
	introspections      *prometheus.CounterVec
	revocations         *prometheus.CounterVec
	tokensIssued        *prometheus.CounterVec
	hookFailures        *prometheus.CounterVec
	issuanceLatency     *prometheus.HistogramVec
	protocolErrors      *prometheus.CounterVec
	storedTokens        prometheus.Gauge
	clientsRegistered   prometheus.Gauge
	usersRegistered     prometheus.Gauge
	resourcesRegistered prometheus.Gauge
}

// NewMetricsCollector builds a collector on a private registry so that
// several servers can share a process.
func NewMetricsCollector() *MetricsCollector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: name, Help: help}, labels)
	}
	histogram := func(name, help string, labels ...string) *prometheus.HistogramVec {
		return f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Name: name, Help: help, Buckets: prometheus.DefBuckets,
		}, labels)
	}
	gauge := func(name, help string) prometheus.Gauge {
		return f.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
	}

	return &MetricsCollector{
		registry: reg,

		httpRequests: counter("http_requests_total", "HTTP requests by endpoint and status", "method", "endpoint", "status_code"),
		httpLatency:  histogram("http_request_duration_seconds", "HTTP request latency", "method", "endpoint"),

		tokenRequests:   counter("token_requests_total", "Token requests by grant type and outcome", "grant_type", "client_id", "status"),
		introspections:  counter("introspect_requests_total", "Introspection requests by resource and outcome", "resource", "status"),
		revocations:     counter("revocations_total", "Revocation requests by client and outcome", "client_id", "status"),
		tokensIssued:    counter("tokens_issued_total", "Tokens minted by type and grant", "token_type", "grant_type"),
		hookFailures:    counter("response_hook_failures_total", "Response customization failures by reason", "reason"),
		issuanceLatency: histogram("issuance_duration_seconds", "Time spent issuing tokens", "grant_type"),
		protocolErrors:  counter("errors_total", "OAuth errors returned by endpoint", "type", "endpoint"),

		storedTokens:        gauge("stored_tokens", "Token records currently held by the store"),
		clientsRegistered:   gauge("registered_clients", "Configured OAuth2 clients"),
		usersRegistered:     gauge("registered_users", "Configured resource owners"),
		resourcesRegistered: gauge("registered_resources", "Configured API resources"),
	}
}

func (mc *MetricsCollector) Registry() *prometheus.Registry {
	return mc.registry
}

// Handler serves the private registry in the Prometheus text format.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}

func (mc *MetricsCollector) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	mc.httpRequests.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	mc.httpLatency.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordTokenRequest counts a token request; status is "success" or the
// OAuth error code.
func (mc *MetricsCollector) RecordTokenRequest(grantType, clientID, status string) {
	mc.tokenRequests.WithLabelValues(grantType, clientID, status).Inc()
}

func (mc *MetricsCollector) RecordIssuance(grantType string, duration time.Duration) {
	mc.issuanceLatency.WithLabelValues(grantType).Observe(duration.Seconds())
}

func (mc *MetricsCollector) RecordIntrospectRequest(resource, status string) {
	mc.introspections.WithLabelValues(resource, status).Inc()
}

func (mc *MetricsCollector) RecordRevocation(clientID, status string) {
	mc.revocations.WithLabelValues(clientID, status).Inc()
}

func (mc *MetricsCollector) RecordTokenIssued(tokenType, grantType string) {
	mc.tokensIssued.WithLabelValues(tokenType, grantType).Inc()
}

// RecordHookFailure counts a response customization that timed out,
// panicked or returned an error.
func (mc *MetricsCollector) RecordHookFailure(reason string) {
	mc.hookFailures.WithLabelValues(reason).Inc()
}

func (mc *MetricsCollector) RecordError(errorType, endpoint string) {
	mc.protocolErrors.WithLabelValues(errorType, endpoint).Inc()
}

func (mc *MetricsCollector) UpdateStoredTokens(count float64) { mc.storedTokens.Set(count) }

func (mc *MetricsCollector) UpdateRegisteredClients(count float64) { mc.clientsRegistered.Set(count) }

func (mc *MetricsCollector) UpdateRegisteredUsers(count float64) { mc.usersRegistered.Set(count) }

func (mc *MetricsCollector) UpdateRegisteredResources(count float64) {
	mc.resourcesRegistered.Set(count)
}

// Middleware records every request against its endpoint label.
func (mc *MetricsCollector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		elapsed := time.Since(start)
		mc.RecordHTTPRequest(r.Method, endpointLabel(r.URL.Path), sw.status, elapsed)
		if elapsed > slowRequest {
			logrus.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   sw.status,
				"duration": elapsed,
			}).Warn("🐢 slow request")
		}
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func endpointLabel(path string) string {
	if label, ok := endpoints[path]; ok {
		return label
	}
	return "other"
}
