package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRPCCall("getBalance", "success", "mainnet", 0.1)
		m.RecordTransactionOutcome("confirmed", 3, 2.5)
		m.RecordPriorityFee(1_000)
		m.RecordWalletAdmitted(1)
		m.RecordCycle()
		m.RecordDBQuery("list_wallets", "wallets", 0.01, nil)
		m.RecordNATSPublish("walletrunner.txns.*", "success", 0.01)
	})
}

func TestRecordDBQuery(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.RecordDBQuery("get_wallet", "wallets", 0.01, nil)
	m.RecordDBQuery("get_wallet", "wallets", 0.02, nil)
	m.RecordDBQuery("get_wallet", "wallets", 0.03, errors.New("connection reset"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues("get_wallet", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dbOperationsTotal.WithLabelValues("get_wallet", "error")))
}

func TestWalletsInFlightGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.RecordWalletAdmitted(1)
	m.RecordWalletAdmitted(1)
	m.RecordWalletAdmitted(-1)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.walletsInFlight))
}

func TestNewHandler(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := NewMetrics(registry)
	m.RecordCycle()

	server := httptest.NewServer(NewHandler(m, registry))
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, string(body), "orchestrator_cycles_total 1")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("/healthz", "GET", "2xx")))
}

func TestTimer(t *testing.T) {
	var got float64
	done := Timer(time.Now().Add(-time.Second), func(d float64) { got = d })
	done()
	assert.GreaterOrEqual(t, got, 1.0)
}
