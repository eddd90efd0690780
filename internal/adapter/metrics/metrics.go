// Package metrics exposes Prometheus collectors for the ledger and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"referral-ledger/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics implements ports.LedgerMetrics and records HTTP latency.
type Metrics struct {
	registry *prometheus.Registry

	commissionPayments *prometheus.CounterVec
	withdrawals        *prometheus.CounterVec
	deposits           *prometheus.CounterVec
	httpRequests       *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		commissionPayments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_commission_payments_total",
			Help: "Referral commission payment attempts per level and result",
		}, []string{"level", "result"}),
		withdrawals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_withdrawals_total",
			Help: "Withdrawals entering each state",
		}, []string{"state"}),
		deposits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_deposits_total",
			Help: "Completed deposits per source",
		}, []string{"source"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of response times",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	}
	reg.MustRegister(
		m.commissionPayments, m.withdrawals, m.deposits, m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) CommissionPayment(level int, result string) {
	m.commissionPayments.WithLabelValues(strconv.Itoa(level), result).Inc()
}

func (m *Metrics) WithdrawalResolved(status domain.TransactionStatus) {
	m.withdrawals.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) DepositCompleted(source domain.DepositSource) {
	m.deposits.WithLabelValues(string(source)).Inc()
}

// ObserveHTTP records one served request. path is the route template, never
// the raw URL, to keep label cardinality bounded.
func (m *Metrics) ObserveHTTP(method, path string, status int, elapsed time.Duration) {
	m.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, path).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
