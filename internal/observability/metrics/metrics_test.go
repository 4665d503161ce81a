package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestBedMetricsSnapshot(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBedMetrics(reg)
	m.SetWardOccupancy("ICU", 100)
	m.ObserveSweep(0.01, []string{"Cardiac"})
	m.ObserveSweep(0.02, nil)
	m.ObserveAlert("capacity_critical", "raised")
	m.ObserveAlert("capacity_critical", "resolved")
	m.ObserveWorkflow("Committed", "", 0.2)
	m.ObserveWorkflow("Failed", "NoAvailableBed", 0.1)
	m.ObserveWorkflow("Committed", "", 0.3)
	m.ObserveReservationConflict()
	m.ObserveRecommendation("ranked")

	snap := ReadSnapshot(reg)
	if snap.WorkflowOutcomes["Committed"] != 2 || snap.WorkflowOutcomes["Failed"] != 1 {
		t.Fatalf("unexpected workflow outcomes: %#v", snap.WorkflowOutcomes)
	}
	if snap.ReservationConflicts != 1 {
		t.Fatalf("expected one conflict, got %v", snap.ReservationConflicts)
	}
	if snap.AlertTransitions["capacity_critical:raised"] != 1 {
		t.Fatalf("unexpected alert transitions: %#v", snap.AlertTransitions)
	}
	if snap.SweepCount != 2 || snap.SweepWardFailures != 1 {
		t.Fatalf("unexpected sweep counters: %d %v", snap.SweepCount, snap.SweepWardFailures)
	}
}

func TestReadSnapshotEmptyRegistry(t *testing.T) {
	snap := ReadSnapshot(prometheus.NewRegistry())
	if len(snap.WorkflowOutcomes) != 0 || snap.SweepCount != 0 {
		t.Fatalf("expected empty snapshot, got %#v", snap)
	}
}

func TestBedMetricsNilSafe(t *testing.T) {
	var m *BedMetrics
	m.SetWardOccupancy("ICU", 50)
	m.ObserveSweep(0.1, []string{"ICU"})
	m.ObserveAlert("capacity_high", "raised")
	m.ObserveWorkflow("Failed", "TimeoutExceeded", 1)
	m.ObserveReservationConflict()
	m.ObserveRecommendation("empty")
}
