package metrics

import "github.com/prometheus/client_golang/prometheus"

// PaymentMetrics exposes counters/histograms for the reconciliation flow.
type PaymentMetrics struct {
	webhookTotal     *prometheus.CounterVec
	reconcileLatency *prometheus.HistogramVec
	conflictsTotal   *prometheus.CounterVec
}

func NewPaymentMetrics(reg prometheus.Registerer) *PaymentMetrics {
	m := &PaymentMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "payments",
			Name:      "webhook_events_total",
			Help:      "Total provider webhook deliveries by outcome",
		}, []string{"provider", "outcome"}),
		reconcileLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "payments",
			Name:      "reconcile_latency_seconds",
			Help:      "Latency of reconciliation event processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider"}),
		conflictsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "payments",
			Name:      "reconcile_conflicts_total",
			Help:      "Reconciliation conflicts resolved by precedence rules",
		}, []string{"kind"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.reconcileLatency, m.conflictsTotal)
	return m
}

func (m *PaymentMetrics) ObserveWebhook(provider, outcome string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(provider, outcome).Inc()
}

func (m *PaymentMetrics) ObserveReconcileLatency(provider string, seconds float64) {
	if m == nil {
		return
	}
	m.reconcileLatency.WithLabelValues(provider).Observe(seconds)
}

func (m *PaymentMetrics) ObserveConflict(kind string) {
	if m == nil {
		return
	}
	m.conflictsTotal.WithLabelValues(kind).Inc()
}

// AvailabilityMetrics tracks slot computations.
type AvailabilityMetrics struct {
	computeTotal   *prometheus.CounterVec
	computeLatency prometheus.Histogram
}

func NewAvailabilityMetrics(reg prometheus.Registerer) *AvailabilityMetrics {
	m := &AvailabilityMetrics{
		computeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "availability",
			Name:      "compute_total",
			Help:      "Total availability computations",
		}, []string{"status"}),
		computeLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "availability",
			Name:      "compute_latency_seconds",
			Help:      "Latency of availability computations",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.computeTotal, m.computeLatency)
	return m
}

func (m *AvailabilityMetrics) ObserveCompute(status string, seconds float64) {
	if m == nil {
		return
	}
	m.computeTotal.WithLabelValues(status).Inc()
	m.computeLatency.Observe(seconds)
}
