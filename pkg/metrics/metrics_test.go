package metrics_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workledger/workledger/pkg/backend"
	"github.com/workledger/workledger/pkg/metrics"
)

func TestObserverOperations(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := metrics.NewObserver(reg)

	o.OperationDone("primary", "get", backend.OutcomeSuccess, 3*time.Millisecond)
	o.OperationDone("primary", "get", backend.OutcomeSuccess, 5*time.Millisecond)
	o.OperationDone("primary", "get", backend.OutcomeTransient, time.Millisecond)
	o.Retried("primary", "get")
	o.FailedOver("primary", "backup", backend.LegFailover)

	assert.Equal(t, 2, testutil.CollectAndCount(reg, "workledger_backend_operations_total"))
	assert.Equal(t, 1, testutil.CollectAndCount(reg, "workledger_backend_retries_total"))

	expected := `
# HELP workledger_backend_failovers_total Failovers between stores
# TYPE workledger_backend_failovers_total counter
workledger_backend_failovers_total{from="primary",leg="failover",to="backup"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "workledger_backend_failovers_total"))
}

func TestObserverStatusGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := metrics.NewObserver(reg)

	o.StatusChanged("primary", backend.StatusOnline, backend.StatusDegraded)
	o.StatusChanged("primary", backend.StatusDegraded, backend.StatusOffline)

	// one series per status for the store
	assert.Equal(t, 4, testutil.CollectAndCount(reg, "workledger_backend_store_status"))
	assert.Equal(t, 2, testutil.CollectAndCount(reg, "workledger_backend_status_transitions_total"))

	expected := `
# HELP workledger_backend_store_status 1 for the current health status of each store, 0 otherwise
# TYPE workledger_backend_store_status gauge
workledger_backend_store_status{status="degraded",store="primary"} 0
workledger_backend_store_status{status="offline",store="primary"} 1
workledger_backend_store_status{status="online",store="primary"} 0
workledger_backend_store_status{status="unknown",store="primary"} 0
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "workledger_backend_store_status"))
}

func TestObserverActiveStore(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := metrics.NewObserver(reg)

	o.ActiveChanged("", "primary")
	o.ActiveChanged("primary", "backup")
	o.HandlesOpen(3)

	expected := `
# HELP workledger_backend_active_store 1 for the store currently serving traffic
# TYPE workledger_backend_active_store gauge
workledger_backend_active_store{store="backup"} 1
workledger_backend_active_store{store="primary"} 0
# HELP workledger_backend_open_handles Acquired handles not yet released
# TYPE workledger_backend_open_handles gauge
workledger_backend_open_handles 3
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"workledger_backend_active_store", "workledger_backend_open_handles"))
}

func TestObserverProbes(t *testing.T) {
	reg := prometheus.NewRegistry()
	o := metrics.NewObserver(reg)

	o.Probed("backup", true, 2*time.Millisecond)
	o.Probed("backup", false, time.Second)
	o.Probed("backup", false, time.Second)

	expected := `
# HELP workledger_backend_probes_total Health probes by store and result
# TYPE workledger_backend_probes_total counter
workledger_backend_probes_total{result="healthy",store="backup"} 1
workledger_backend_probes_total{result="unhealthy",store="backup"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "workledger_backend_probes_total"))
}

func TestHTTPMiddlewareUsesRouteTemplate(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewHTTP(reg)

	r := mux.NewRouter()
	r.Use(m.Middleware)
	r.HandleFunc("/api/employees/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	for _, path := range []string{"/api/employees/42", "/api/employees/43"} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	}

	expected := `
# HELP workledger_api_requests_total Total number of API requests
# TYPE workledger_api_requests_total counter
workledger_api_requests_total{method="GET",route="/api/employees/{id}",status="404"} 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "workledger_api_requests_total"))
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics.NewObserver(reg).HandlesOpen(1)

	rec := httptest.NewRecorder()
	metrics.Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "workledger_backend_open_handles 1")
}
