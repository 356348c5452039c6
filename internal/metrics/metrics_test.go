package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	b, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(b)
}

func TestGatewayHandler(t *testing.T) {
	m := NewGateway()
	pending := 3
	m.TrackPending(func() int { return pending })

	m.Submissions.WithLabelValues("resolved").Inc()
	m.Evictions.WithLabelValues("unclaimed").Add(2)

	body := scrape(t, m.Handler())
	require.Contains(t, body, `cardflow_gateway_submissions_total{outcome="resolved"} 1`)
	require.Contains(t, body, `cardflow_gateway_correlation_evictions_total{reason="unclaimed"} 2`)
	require.Contains(t, body, "cardflow_gateway_correlation_entries 3")
	require.Contains(t, body, "go_goroutines")
}

func TestAuthorizerRegistryIsPrivate(t *testing.T) {
	a, b := NewAuthorizer(), NewAuthorizer()

	a.Decisions.WithLabelValues("000").Inc()
	require.Equal(t, 1.0, testutil.ToFloat64(a.Decisions.WithLabelValues("000")))
	require.Equal(t, 0.0, testutil.ToFloat64(b.Decisions.WithLabelValues("000")))

	require.Contains(t, scrape(t, a.Handler()), `cardflow_authorizer_decisions_total{response_code="000"} 1`)
}
