package allocation

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wolfman30/hospital-bed-platform/internal/alerts"
	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	"github.com/wolfman30/hospital-bed-platform/internal/observability/metrics"
)

// DashboardSummary is the hospital-wide view shown on the bed board.
type DashboardSummary struct {
	GeneratedAt    time.Time                      `json:"generated_at"`
	TotalBeds      int                            `json:"total_beds"`
	OccupiedBeds   int                            `json:"occupied_beds"`
	OccupancyRate  float64                        `json:"occupancy_rate"`
	StatusCounts   map[beds.Status]int            `json:"status_counts"`
	Wards          []alerts.WardOccupancySnapshot `json:"wards"`
	ActiveAlerts   int                            `json:"active_alerts"`
	CriticalAlerts int                            `json:"critical_alerts"`
	LastSweep      *time.Time                     `json:"last_sweep,omitempty"`
	Metrics        metrics.Snapshot               `json:"metrics"`
}

// DashboardSummary computes ward occupancy from the live inventory and reads
// workflow and sweep counters back from the metrics registry.
func (s *Service) DashboardSummary(ctx context.Context) (DashboardSummary, error) {
	list, err := s.inventory.ListBeds(ctx, "")
	if err != nil {
		return DashboardSummary{}, fmt.Errorf("allocation: dashboard: list beds: %w", err)
	}
	now := s.now()
	summary := DashboardSummary{
		GeneratedAt:  now,
		TotalBeds:    len(list),
		StatusCounts: map[beds.Status]int{},
		Wards:        alerts.Snapshots(list, now, s.cleaningOverdue),
		Metrics:      metrics.ReadSnapshot(s.gatherer),
	}
	for _, b := range list {
		summary.StatusCounts[b.Status]++
	}
	summary.OccupiedBeds = summary.StatusCounts[beds.StatusOccupied]
	if summary.TotalBeds > 0 {
		summary.OccupancyRate = math.Round(float64(summary.OccupiedBeds)/float64(summary.TotalBeds)*1000) / 10
	}

	active, err := s.monitor.List(ctx, alerts.ListFilter{})
	if err != nil {
		s.logger.Warn("dashboard: alerts unavailable", "error", err)
	}
	for _, a := range active {
		summary.ActiveAlerts++
		if a.Priority == alerts.PriorityCritical {
			summary.CriticalAlerts++
		}
	}
	if last := s.monitor.LastRun(); !last.IsZero() {
		summary.LastSweep = &last
	}
	return summary, nil
}
