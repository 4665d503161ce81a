package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "hospital"

// BedMetrics exposes gauges, counters and histograms for the allocation core.
type BedMetrics struct {
	wardOccupancy    *prometheus.GaugeVec
	sweepDuration    prometheus.Histogram
	sweepFailures    *prometheus.CounterVec
	alertTransitions *prometheus.CounterVec
	workflowOutcomes *prometheus.CounterVec
	workflowLatency  prometheus.Histogram
	reservationRaces prometheus.Counter
	recommendations  *prometheus.CounterVec
}

func NewBedMetrics(reg prometheus.Registerer) *BedMetrics {
	m := &BedMetrics{
		wardOccupancy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "beds",
			Name:      "ward_occupancy_percent",
			Help:      "Occupied beds as a percentage of ward capacity at the last sweep",
		}, []string{"ward"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sweep_duration_seconds",
			Help:      "Duration of capacity alert sweeps",
			Buckets:   prometheus.DefBuckets,
		}),
		sweepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "sweep_ward_failures_total",
			Help:      "Wards skipped during a sweep because of an error",
		}, []string{"ward"}),
		alertTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alerts",
			Name:      "transitions_total",
			Help:      "Alert lifecycle transitions by type and action",
		}, []string{"type", "action"}),
		workflowOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "outcomes_total",
			Help:      "Terminal assignment workflow outcomes",
		}, []string{"state", "kind"}),
		workflowLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "duration_seconds",
			Help:      "Time from workflow creation to a terminal state",
			Buckets:   prometheus.DefBuckets,
		}),
		reservationRaces: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "workflow",
			Name:      "reservation_conflicts_total",
			Help:      "Compare-and-swap reservations lost to another workflow",
		}),
		recommendations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "recommendations_total",
			Help:      "Bed recommendations by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.wardOccupancy, m.sweepDuration, m.sweepFailures, m.alertTransitions,
		m.workflowOutcomes, m.workflowLatency, m.reservationRaces, m.recommendations)
	return m
}

func (m *BedMetrics) SetWardOccupancy(ward string, percent float64) {
	if m == nil {
		return
	}
	m.wardOccupancy.WithLabelValues(ward).Set(percent)
}

func (m *BedMetrics) ObserveSweep(seconds float64, failedWards []string) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(seconds)
	for _, ward := range failedWards {
		m.sweepFailures.WithLabelValues(ward).Inc()
	}
}

func (m *BedMetrics) ObserveAlert(alertType, action string) {
	if m == nil {
		return
	}
	m.alertTransitions.WithLabelValues(alertType, action).Inc()
}

func (m *BedMetrics) ObserveWorkflow(state, kind string, seconds float64) {
	if m == nil {
		return
	}
	m.workflowOutcomes.WithLabelValues(state, kind).Inc()
	m.workflowLatency.Observe(seconds)
}

func (m *BedMetrics) ObserveReservationConflict() {
	if m == nil {
		return
	}
	m.reservationRaces.Inc()
}

func (m *BedMetrics) ObserveRecommendation(outcome string) {
	if m == nil {
		return
	}
	m.recommendations.WithLabelValues(outcome).Inc()
}
