package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmissionCounters(t *testing.T) {
	m := New(nil)

	m.ObserveAttempt()
	m.ObserveAttempt()
	m.ObserveRetry()
	m.ObserveResult(true)
	m.ObserveResult(false)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.TxAttempts))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TxRetries))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TxResults.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.TxResults.WithLabelValues("failure")))
}

func TestAllocationAndSignatureCounters(t *testing.T) {
	m := New(nil)
	m.ObserveAllocation("merge")
	m.ObserveAllocation("merge")
	m.ObserveSignature("order")
	m.ObserveHTTP("/v1/orders/sign", "200")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Allocations.WithLabelValues("merge")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Signatures.WithLabelValues("order")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.HTTPRequests.WithLabelValues("/v1/orders/sign", "200")))
}

func TestNewRegistersOnRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveAttempt()

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "suiperp_tx_attempts_total")

	assert.Panics(t, func() { New(reg) })
}
