package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// SettlementMetrics counts settlement outcomes, stock commit retries and
// follow-up task results.
type SettlementMetrics struct {
	outcomes     *prometheus.CounterVec
	stockRetries *prometheus.CounterVec
	followUps    *prometheus.CounterVec
}

// NewSettlementMetrics registers the settlement metrics on the provided registerer.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_outcomes_total",
		Help: "Settlement requests by outcome.",
	}, []string{"outcome"})
	stockRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_commit_retries_total",
		Help: "Stale stock commits that were refreshed and retried.",
	}, []string{"pool"})
	followUps := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "settlement_followups_total",
		Help: "Settlement follow-up task executions by kind and outcome.",
	}, []string{"kind", "outcome"})
	reg.MustRegister(outcomes, stockRetries, followUps)
	return &SettlementMetrics{
		outcomes:     outcomes,
		stockRetries: stockRetries,
		followUps:    followUps,
	}
}

// IncOutcome counts one settlement request result, e.g. "settled" or "insufficient_stock".
func (m *SettlementMetrics) IncOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncStockRetry counts one stale commit retry against a central or location pool.
func (m *SettlementMetrics) IncStockRetry(pool string) {
	if m == nil || m.stockRetries == nil {
		return
	}
	m.stockRetries.WithLabelValues(normalizeLabel(pool)).Inc()
}

// IncFollowUp counts one follow-up task run.
func (m *SettlementMetrics) IncFollowUp(kind, outcome string) {
	if m == nil || m.followUps == nil {
		return
	}
	m.followUps.WithLabelValues(normalizeLabel(kind), normalizeLabel(outcome)).Inc()
}
