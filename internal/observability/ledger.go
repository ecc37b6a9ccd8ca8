package observability

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics tracks stock ledger mutations and outbox dispatch.
type LedgerMetrics struct {
	mutationsTotal   *prometheus.CounterVec
	outboxDispatched prometheus.Counter
	outboxFailed     prometheus.Counter
}

// NewLedgerMetrics registers ledger metrics on the given registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_mutations_total",
		Help: "Ledger mutations by operation and outcome.",
	}, []string{"operation", "outcome"})
	dispatched := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockledger_outbox_dispatched_total",
		Help: "Outbox messages handed to the event sink.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stockledger_outbox_failed_total",
		Help: "Outbox messages that failed to dispatch.",
	})
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(mutations, dispatched, failed)
	return &LedgerMetrics{
		mutationsTotal:   mutations,
		outboxDispatched: dispatched,
		outboxFailed:     failed,
	}
}

// ObserveMutation counts one mutation attempt.
func (m *LedgerMetrics) ObserveMutation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.mutationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveOutboxDispatch counts outbox dispatch results.
func (m *LedgerMetrics) ObserveOutboxDispatch(dispatched, failed int) {
	if m == nil {
		return
	}
	m.outboxDispatched.Add(float64(dispatched))
	m.outboxFailed.Add(float64(failed))
}
