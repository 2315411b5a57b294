// Package metrics exposes Prometheus counters for chain submissions, coin allocation and signing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "suiperp"

// Metrics satisfies sui.Recorder and coins.Recorder
type Metrics struct {
	TxAttempts   prometheus.Counter
	TxRetries    prometheus.Counter
	TxResults    *prometheus.CounterVec // result: success/failure
	Allocations  *prometheus.CounterVec // path: exact/split/merge/zero
	Signatures   *prometheus.CounterVec // kind: order/cancel/onboarding/personal_message/transaction
	HTTPRequests *prometheus.CounterVec // route, code
}

// New registers the counters on reg. A nil reg uses a private registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)
	return &Metrics{
		TxAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_attempts_total",
			Help:      "Transaction execution attempts, retries included",
		}),
		TxRetries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_lock_retries_total",
			Help:      "Retries after validator object lock contention",
		}),
		TxResults: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tx_results_total",
			Help:      "Final transaction outcomes",
		}, []string{"result"}),
		Allocations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "coin_allocations_total",
			Help:      "Exact-balance coin allocations by path",
		}, []string{"path"}),
		Signatures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "signatures_total",
			Help:      "Signatures produced by kind",
		}, []string{"kind"}),
		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Signing API requests",
		}, []string{"route", "code"}),
	}
}

func (m *Metrics) ObserveAttempt() { m.TxAttempts.Inc() }

func (m *Metrics) ObserveRetry() { m.TxRetries.Inc() }

func (m *Metrics) ObserveResult(success bool) {
	if success {
		m.TxResults.WithLabelValues("success").Inc()
		return
	}
	m.TxResults.WithLabelValues("failure").Inc()
}

func (m *Metrics) ObserveAllocation(path string) { m.Allocations.WithLabelValues(path).Inc() }

func (m *Metrics) ObserveSignature(kind string) { m.Signatures.WithLabelValues(kind).Inc() }

func (m *Metrics) ObserveHTTP(route, code string) { m.HTTPRequests.WithLabelValues(route, code).Inc() }
