package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCollector_RecordTransfer(t *testing.T) {
	m := NewMetricsCollector(nil)

	m.RecordTransfer(OutcomeCommitted, 10*time.Millisecond, 3)
	m.RecordTransfer(OutcomeCommitted, 10*time.Millisecond, 0)
	m.RecordTransfer(OutcomeFailed, 5*time.Millisecond, 7)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.transfers.WithLabelValues(OutcomeCommitted)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.transfers.WithLabelValues(OutcomeFailed)))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.feesCollected))
}

func TestMetricsCollector_NilSafe(t *testing.T) {
	var m *MetricsCollector
	m.RecordTransfer(OutcomeCommitted, time.Second, 1)
	m.RecordLockTimeout()
	m.RecordObserverFailure("audit")
	m.RecordFraudFlag()
}

func TestMetricsCollector_Handler(t *testing.T) {
	m := NewMetricsCollector(nil)
	m.RecordLockTimeout()
	m.RecordObserverFailure("email")

	rec := httptest.NewRecorder()
	m.GetHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "ledger_lock_timeouts_total 1"))
	assert.True(t, strings.Contains(string(body), `ledger_observer_failures_total{observer="email"} 1`))
}
