package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestCollectorsRecord(t *testing.T) {
	Init()
	Init()

	before := testutil.ToFloat64(fetchTotal.WithLabelValues("robots", "OK"))
	ObserveFetch("robots", "OK", 150*time.Millisecond, 42)
	require.Equal(t, before+1, testutil.ToFloat64(fetchTotal.WithLabelValues("robots", "OK")))

	IncAdmission("rate_limited", "trial")
	require.GreaterOrEqual(t, testutil.ToFloat64(admissionTotal.WithLabelValues("rate_limited", "trial")), 1.0)

	SetBreakerState("counter-store", 1)
	require.Equal(t, 1.0, testutil.ToFloat64(breakerState.WithLabelValues("counter-store")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	ObserveHTTPRequest(http.MethodGet, "/api/fetch", http.StatusOK, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "gateway_http_requests_total")
}
