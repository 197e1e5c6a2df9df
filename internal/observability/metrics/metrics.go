package metrics

import "github.com/prometheus/client_golang/prometheus"

// SyncMetrics exposes counters/histograms for the booking sync flows.
type SyncMetrics struct {
	webhookTotal    *prometheus.CounterVec
	reconcileTotal  *prometheus.CounterVec
	syncDuration    prometheus.Histogram
	discoveryStaff  *prometheus.CounterVec
	availabilitySrc *prometheus.CounterVec
}

func NewSyncMetrics(reg prometheus.Registerer) *SyncMetrics {
	m := &SyncMetrics{
		webhookTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "velora",
			Subsystem: "sync",
			Name:      "webhook_total",
			Help:      "Total inbound booking webhooks",
		}, []string{"event_type", "status"}),
		reconcileTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "velora",
			Subsystem: "sync",
			Name:      "reconcile_events_total",
			Help:      "Reconciled booking events by outcome",
		}, []string{"outcome"}),
		syncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "velora",
			Subsystem: "sync",
			Name:      "pass_duration_seconds",
			Help:      "Duration of full reconciliation passes",
			Buckets:   prometheus.DefBuckets,
		}),
		discoveryStaff: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "velora",
			Subsystem: "sync",
			Name:      "discovery_staff_total",
			Help:      "Staff schedules produced by discovery, by source tier",
		}, []string{"source"}),
		availabilitySrc: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "velora",
			Subsystem: "availability",
			Name:      "answers_total",
			Help:      "Availability answers by serving source",
		}, []string{"source"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.webhookTotal, m.reconcileTotal, m.syncDuration, m.discoveryStaff, m.availabilitySrc)
	return m
}

func (m *SyncMetrics) ObserveWebhook(eventType, status string) {
	if m == nil {
		return
	}
	m.webhookTotal.WithLabelValues(eventType, status).Inc()
}

func (m *SyncMetrics) ObserveReconcile(outcome string) {
	if m == nil {
		return
	}
	m.reconcileTotal.WithLabelValues(outcome).Inc()
}

func (m *SyncMetrics) ObserveSyncDuration(seconds float64) {
	if m == nil {
		return
	}
	m.syncDuration.Observe(seconds)
}

func (m *SyncMetrics) ObserveDiscovery(source string, staffCount int) {
	if m == nil {
		return
	}
	m.discoveryStaff.WithLabelValues(source).Add(float64(staffCount))
}

func (m *SyncMetrics) ObserveAvailability(source string) {
	if m == nil {
		return
	}
	m.availabilitySrc.WithLabelValues(source).Inc()
}
