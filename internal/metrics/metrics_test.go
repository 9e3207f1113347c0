package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	mc := NewMetricsCollector()
	handler := mc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/connect/introspect", nil))
	mc.RecordTokenIssued("access_token", "password")
	mc.RecordHookFailure("timeout")

	rec := httptest.NewRecorder()
	mc.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)

	for _, want := range []string{
		`oauth2_http_requests_total{endpoint="introspect",method="POST",status_code="401"} 1`,
		`oauth2_tokens_issued_total{grant_type="password",token_type="access_token"} 1`,
		`oauth2_response_hook_failures_total{reason="timeout"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("Metrics output missing %q", want)
		}
	}
}

func TestCollectorsAreIndependent(t *testing.T) {
	// two collectors must not collide on registration
	NewMetricsCollector()
	NewMetricsCollector()
}

func TestEndpointLabel(t *testing.T) {
	tests := map[string]string{
		"/connect/token":      "token",
		"/connect/introspect": "introspect",
		"/connect/revocation": "revocation",
		"/version":            "version",
		"/connect/authorize":  "other",
		"/":                   "other",
	}
	for path, want := range tests {
		if got := endpointLabel(path); got != want {
			t.Errorf("endpointLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
