package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PayoutMetrics tracks dispatch outcomes and retry exhaustion.
type PayoutMetrics struct {
	dispatched     *prometheus.CounterVec
	retryExhausted prometheus.Counter
}

// NewPayoutMetrics registers the payout metrics on the provided registerer.
func NewPayoutMetrics(reg prometheus.Registerer) *PayoutMetrics {
	if reg == nil {
		return &PayoutMetrics{}
	}
	dispatched := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "payout_dispatch_total",
		Help: "Payout dispatch attempts by outcome.",
	}, []string{"outcome"})
	retryExhausted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "payout_retry_exhausted_total",
		Help: "Payouts that failed after the maximum retry count.",
	})
	reg.MustRegister(dispatched, retryExhausted)
	return &PayoutMetrics{
		dispatched:     dispatched,
		retryExhausted: retryExhausted,
	}
}

// IncDispatched increments the dispatch counter for the given outcome.
func (p *PayoutMetrics) IncDispatched(outcome string) {
	if p == nil || p.dispatched == nil {
		return
	}
	p.dispatched.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncRetryExhausted increments the retry exhaustion counter.
func (p *PayoutMetrics) IncRetryExhausted() {
	if p == nil || p.retryExhausted == nil {
		return
	}
	p.retryExhausted.Inc()
}
