package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	registry            *prometheus.Registry
	httpDuration        *prometheus.HistogramVec
	loanTransitions     *prometheus.CounterVec
	inventoryRejections *prometheus.CounterVec
	loansCreated        prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labloans",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		loanTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labloans",
			Name:      "loan_transitions_total",
			Help:      "Loan status transitions by target status and outcome.",
		}, []string{"to", "outcome"}),
		inventoryRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labloans",
			Name:      "inventory_rejections_total",
			Help:      "Inventory ledger operations refused for lack of stock or invariant checks.",
		}, []string{"operation"}),
		loansCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "labloans",
			Name:      "loans_created_total",
			Help:      "Loan requests created.",
		}),
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpDuration,
		m.loanTransitions,
		m.inventoryRejections,
		m.loansCreated,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveHTTP(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, status).Observe(dur.Seconds())
}

func (m *Metrics) LoanTransition(to, outcome string) {
	if m == nil {
		return
	}
	m.loanTransitions.WithLabelValues(to, outcome).Inc()
}

func (m *Metrics) InventoryRejected(operation string) {
	if m == nil {
		return
	}
	m.inventoryRejections.WithLabelValues(operation).Inc()
}

func (m *Metrics) LoanCreated() {
	if m == nil {
		return
	}
	m.loansCreated.Inc()
}
