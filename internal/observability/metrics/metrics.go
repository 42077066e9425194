package metrics

import "github.com/prometheus/client_golang/prometheus"

// ConversationMetrics exposes counters/histograms for conversation flows.
type ConversationMetrics struct {
	turnsTotal      *prometheus.CounterVec
	fragmentsTotal  prometheus.Counter
	streamFailures  prometheus.Counter
	paymentOutcomes *prometheus.CounterVec
	turnLatency     prometheus.Histogram
}

func NewConversationMetrics(reg prometheus.Registerer) *ConversationMetrics {
	m := &ConversationMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediconnect",
			Subsystem: "conversation",
			Name:      "turns_total",
			Help:      "Total completed user turns",
		}, []string{"outcome"}),
		fragmentsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediconnect",
			Subsystem: "conversation",
			Name:      "stream_fragments_total",
			Help:      "Total streamed response fragments applied",
		}),
		streamFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mediconnect",
			Subsystem: "conversation",
			Name:      "stream_failures_total",
			Help:      "Total mid-turn stream transport failures",
		}),
		paymentOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mediconnect",
			Subsystem: "payments",
			Name:      "outcomes_total",
			Help:      "Terminal payment outcomes by result",
		}, []string{"result"}),
		turnLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "mediconnect",
			Subsystem: "conversation",
			Name:      "turn_latency_seconds",
			Help:      "Latency from user submission to finalized assistant message",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.fragmentsTotal, m.streamFailures, m.paymentOutcomes, m.turnLatency)
	return m
}

func (m *ConversationMetrics) ObserveTurn(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(outcome).Inc()
	m.turnLatency.Observe(seconds)
}

func (m *ConversationMetrics) ObserveFragment() {
	if m == nil {
		return
	}
	m.fragmentsTotal.Inc()
}

func (m *ConversationMetrics) ObserveStreamFailure() {
	if m == nil {
		return
	}
	m.streamFailures.Inc()
}

func (m *ConversationMetrics) ObservePaymentOutcome(result string) {
	if m == nil {
		return
	}
	m.paymentOutcomes.WithLabelValues(result).Inc()
}
