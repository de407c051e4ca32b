package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/analytics-hub/authhub/internal/authz"
)

func TestMiddlewareRecordsRequests(t *testing.T) {
	m := NewMetrics()
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/roles", nil)
	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusTeapot, rec.Code)

	body := scrape(t, m)
	require.Contains(t, body, "authhub_http_requests_total")
	require.Contains(t, body, `code="418"`)
}

func TestObserveDecision(t *testing.T) {
	m := NewMetrics()
	m.ObserveDecision(authz.ReasonExplicitDeny, false, 2*time.Millisecond)
	m.ObserveDecision(authz.ReasonRoleGrant, true, time.Millisecond)

	body := scrape(t, m)
	require.Contains(t, body, `authhub_authz_decisions_total{allowed="false",reason="explicit_deny"} 1`)
	require.Contains(t, body, `authhub_authz_decisions_total{allowed="true",reason="role_grant"} 1`)
	require.Contains(t, body, "authhub_authz_decision_duration_seconds")
}

func TestNilMetricsAreInert(t *testing.T) {
	var m *Metrics
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	m.Middleware(next).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	m.ObserveDecision(authz.ReasonNoGrant, false, time.Millisecond)

	rec = httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	return strings.TrimSpace(rec.Body.String())
}
