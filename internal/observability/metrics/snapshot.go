package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Snapshot is the subset of metrics surfaced on the dashboard summary.
type Snapshot struct {
	WorkflowOutcomes     map[string]float64 `json:"workflow_outcomes"`
	ReservationConflicts float64            `json:"reservation_conflicts"`
	AlertTransitions     map[string]float64 `json:"alert_transitions"`
	SweepCount           uint64             `json:"sweep_count"`
	SweepWardFailures    float64            `json:"sweep_ward_failures"`
}

// ReadSnapshot gathers the current values back out of the registry.
func ReadSnapshot(gatherer prometheus.Gatherer) Snapshot {
	snap := Snapshot{
		WorkflowOutcomes: map[string]float64{},
		AlertTransitions: map[string]float64{},
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mfs, err := gatherer.Gather()
	if err != nil {
		return snap
	}
	for _, mf := range mfs {
		if mf == nil {
			continue
		}
		switch mf.GetName() {
		case "hospital_workflow_outcomes_total":
			for _, metric := range mf.GetMetric() {
				snap.WorkflowOutcomes[labelValue(metric, "state")] += metric.GetCounter().GetValue()
			}
		case "hospital_workflow_reservation_conflicts_total":
			for _, metric := range mf.GetMetric() {
				snap.ReservationConflicts += metric.GetCounter().GetValue()
			}
		case "hospital_alerts_transitions_total":
			for _, metric := range mf.GetMetric() {
				key := labelValue(metric, "type") + ":" + labelValue(metric, "action")
				snap.AlertTransitions[key] += metric.GetCounter().GetValue()
			}
		case "hospital_alerts_sweep_duration_seconds":
			for _, metric := range mf.GetMetric() {
				snap.SweepCount += metric.GetHistogram().GetSampleCount()
			}
		case "hospital_alerts_sweep_ward_failures_total":
			for _, metric := range mf.GetMetric() {
				snap.SweepWardFailures += metric.GetCounter().GetValue()
			}
		}
	}
	return snap
}

func labelValue(metric *dto.Metric, name string) string {
	for _, lp := range metric.GetLabel() {
		if lp != nil && lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}
