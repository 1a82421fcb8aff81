package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.LoanTransition("PICKED_UP", "ok")
	m.LoanTransition("PICKED_UP", "ok")
	m.LoanTransition("PICKED_UP", "insufficient_stock")
	m.InventoryRejected("reserve")
	m.LoanCreated()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.loanTransitions.WithLabelValues("PICKED_UP", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.inventoryRejections.WithLabelValues("reserve")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.loansCreated))
}

func TestMetrics_HandlerExposesSeries(t *testing.T) {
	m := New()
	m.ObserveHTTP("GET", "/loans", "200", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "labloans_http_request_duration_seconds")
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.LoanTransition("APPROVED", "ok")
		m.InventoryRejected("release")
		m.ObserveHTTP("GET", "/", "200", time.Second)
		m.LoanCreated()
	})
}
