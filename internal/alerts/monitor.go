package alerts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	"github.com/wolfman30/hospital-bed-platform/internal/events"
	"github.com/wolfman30/hospital-bed-platform/internal/observability/metrics"
	"github.com/wolfman30/hospital-bed-platform/internal/retry"
	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

var alertsTracer = otel.Tracer("hospital.internal.alerts")

// SystemActor is recorded as the resolver of automatically resolved alerts.
const SystemActor = "system"

var icuActions = []string{
	"Review step-down candidates",
	"Contact overflow facilities",
	"Expedite discharges",
	"Activate surge protocols",
}

var wardActions = []string{
	"Expedite pending discharges",
	"Review elective admissions",
	"Prepare overflow beds",
}

// Thresholds configures when alerts fire.
type Thresholds struct {
	HighPct              float64
	CriticalPct          float64
	CleaningOverdueAfter time.Duration
}

// DefaultThresholds returns the stock thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{HighPct: 85, CriticalPct: 90, CleaningOverdueAfter: 2 * time.Hour}
}

// WardOccupancySnapshot is one ward's occupancy at sweep time.
type WardOccupancySnapshot struct {
	Ward            string    `json:"ward"`
	Total           int       `json:"total"`
	Occupied        int       `json:"occupied"`
	Rate            float64   `json:"rate"`
	CleaningOverdue []string  `json:"cleaning_overdue,omitempty"`
	OldestCleaning  time.Time `json:"-"`
}

// Snapshots groups beds by ward and computes occupancy, sorted by ward.
func Snapshots(list []beds.Bed, now time.Time, overdueAfter time.Duration) []WardOccupancySnapshot {
	byWard := map[string]*WardOccupancySnapshot{}
	for _, b := range list {
		snap, ok := byWard[b.Ward]
		if !ok {
			snap = &WardOccupancySnapshot{Ward: b.Ward}
			byWard[b.Ward] = snap
		}
		snap.Total++
		switch b.Status {
		case beds.StatusOccupied:
			snap.Occupied++
		case beds.StatusCleaning:
			if overdueAfter > 0 && now.Sub(b.LastChange) > overdueAfter {
				snap.CleaningOverdue = append(snap.CleaningOverdue, b.ID)
				if snap.OldestCleaning.IsZero() || b.LastChange.Before(snap.OldestCleaning) {
					snap.OldestCleaning = b.LastChange
				}
			}
		}
	}
	out := make([]WardOccupancySnapshot, 0, len(byWard))
	for _, snap := range byWard {
		if snap.Total > 0 {
			snap.Rate = math.Round(snap.Percent()*10) / 10
		}
		sort.Strings(snap.CleaningOverdue)
		out = append(out, *snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ward < out[j].Ward })
	return out
}

// Percent is the unrounded occupancy percentage. Rate is its display form
// and must not be compared against thresholds.
func (s WardOccupancySnapshot) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Occupied*100) / float64(s.Total)
}

// SweepReport summarizes one sweep.
type SweepReport struct {
	StartedAt   time.Time               `json:"started_at"`
	FinishedAt  time.Time               `json:"finished_at"`
	Wards       []WardOccupancySnapshot `json:"wards"`
	Raised      []Alert                 `json:"raised"`
	Refreshed   []Alert                 `json:"refreshed"`
	Resolved    []Alert                 `json:"resolved"`
	Active      []Alert                 `json:"active"`
	FailedWards map[string]string       `json:"failed_wards,omitempty"`
}

// Monitor reconciles alerts against ward occupancy. Sweeps are serialized.
type Monitor struct {
	inventory  beds.BedReader
	store      Store
	publisher  events.Publisher
	thresholds Thresholds
	retry      retry.Policy
	metrics    *metrics.BedMetrics
	logger     *logging.Logger
	now        func() time.Time

	mu      sync.Mutex
	lastRun time.Time
}

// NewMonitor creates a monitor. A nil publisher drops events.
func NewMonitor(inventory beds.BedReader, store Store, publisher events.Publisher, thresholds Thresholds, logger *logging.Logger) *Monitor {
	if logger == nil {
		logger = logging.Default()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if thresholds.CriticalPct <= 0 {
		thresholds.CriticalPct = DefaultThresholds().CriticalPct
	}
	if thresholds.HighPct <= 0 || thresholds.HighPct > thresholds.CriticalPct {
		thresholds.HighPct = math.Min(DefaultThresholds().HighPct, thresholds.CriticalPct)
	}
	return &Monitor{
		inventory:  inventory,
		store:      store,
		publisher:  publisher,
		thresholds: thresholds,
		retry:      retry.Default,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithRetry sets the policy used for inventory reads and store writes.
func (m *Monitor) WithRetry(p retry.Policy) *Monitor {
	m.retry = p
	return m
}

// WithMetrics attaches prometheus metrics.
func (m *Monitor) WithMetrics(bm *metrics.BedMetrics) *Monitor {
	m.metrics = bm
	return m
}

// WithClock overrides the sweep clock.
func (m *Monitor) WithClock(now func() time.Time) *Monitor {
	if now != nil {
		m.now = now
	}
	return m
}

// LastRun returns when the last sweep finished, zero if none has.
func (m *Monitor) LastRun() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRun
}

// Sweep recomputes occupancy for every ward and raises, refreshes or resolves
// alerts. A ward whose reconciliation fails is recorded in FailedWards and
// the sweep continues with the next ward.
func (m *Monitor) Sweep(ctx context.Context) (SweepReport, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ctx, span := alertsTracer.Start(ctx, "alerts.sweep")
	defer span.End()

	now := m.now()
	report := SweepReport{StartedAt: now}

	var list []beds.Bed
	err := m.retry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		list, err = m.inventory.ListBeds(ctx, "")
		return err
	})
	if err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("alerts: sweep: list beds: %w", err)
	}

	var active []Alert
	err = m.retry.Do(ctx, func(ctx context.Context, _ int) error {
		var err error
		active, err = m.store.Active(ctx)
		return err
	})
	if err != nil {
		span.RecordError(err)
		return report, fmt.Errorf("alerts: sweep: load active: %w", err)
	}
	byKey := make(map[Key]Alert, len(active))
	for _, a := range active {
		byKey[a.Key()] = a
	}

	report.Wards = Snapshots(list, now, m.thresholds.CleaningOverdueAfter)
	var failed []string
	for _, snap := range report.Wards {
		m.metrics.SetWardOccupancy(snap.Ward, snap.Rate)
		if err := m.reconcileWard(ctx, snap, now, byKey, &report); err != nil {
			if report.FailedWards == nil {
				report.FailedWards = map[string]string{}
			}
			report.FailedWards[snap.Ward] = err.Error()
			failed = append(failed, snap.Ward)
			m.logger.Warn("alert sweep skipped ward", "ward", snap.Ward, "error", err)
		}
	}

	for _, a := range byKey {
		if a.Active() {
			report.Active = append(report.Active, a)
		}
	}
	SortForDisplay(report.Active)

	report.FinishedAt = m.now()
	m.lastRun = report.FinishedAt
	m.metrics.ObserveSweep(report.FinishedAt.Sub(report.StartedAt).Seconds(), failed)
	span.SetAttributes(
		attribute.Int("hospital.alerts.wards", len(report.Wards)),
		attribute.Int("hospital.alerts.raised", len(report.Raised)),
		attribute.Int("hospital.alerts.resolved", len(report.Resolved)),
		attribute.Int("hospital.alerts.failed_wards", len(failed)),
	)
	if len(report.Raised)+len(report.Refreshed)+len(report.Resolved) > 0 {
		m.logger.Info("alert sweep applied changes",
			"raised", len(report.Raised),
			"refreshed", len(report.Refreshed),
			"resolved", len(report.Resolved),
			"failed_wards", len(failed),
		)
	}
	return report, nil
}

var managedTypes = []Type{TypeCapacityCritical, TypeCapacityHigh, TypeCleaningOverdue}

func (m *Monitor) reconcileWard(ctx context.Context, snap WardOccupancySnapshot, now time.Time, byKey map[Key]Alert, report *SweepReport) error {
	desired := m.evaluate(snap)
	for _, t := range managedTypes {
		key := Key{Type: t, Department: snap.Ward}
		existing, has := byKey[key]
		want, wanted := desired[t]

		switch {
		case wanted && !has:
			want.ID = uuid.NewString()
			want.CreatedAt = now
			want.UpdatedAt = now
			if err := m.write(ctx, func(ctx context.Context) error { return m.store.Insert(ctx, want) }); err != nil {
				return fmt.Errorf("raise %s: %w", t, err)
			}
			byKey[key] = want
			report.Raised = append(report.Raised, want)
			m.metrics.ObserveAlert(string(t), "raised")
			m.publish(ctx, "ward:"+snap.Ward, events.AlertRaisedV1{
				AlertID:        want.ID,
				AlertType:      string(want.Type),
				Priority:       string(want.Priority),
				Department:     want.Department,
				Title:          want.Title,
				Message:        want.Message,
				ActionRequired: want.ActionRequired,
				Metadata:       want.Metadata(),
				RaisedAt:       now,
			})

		case wanted && has:
			if existing.Message == want.Message && sameDetails(existing.Details, want.Details) {
				continue
			}
			if err := m.write(ctx, func(ctx context.Context) error {
				return m.store.Refresh(ctx, existing.ID, want.Message, want.Details, now)
			}); err != nil {
				return fmt.Errorf("refresh %s: %w", t, err)
			}
			existing.Message = want.Message
			existing.Details = want.Details
			existing.UpdatedAt = now
			byKey[key] = existing
			report.Refreshed = append(report.Refreshed, existing)
			m.metrics.ObserveAlert(string(t), "refreshed")

		case !wanted && has:
			var resolved bool
			if err := m.write(ctx, func(ctx context.Context) error {
				var err error
				resolved, err = m.store.Resolve(ctx, existing.ID, SystemActor, now)
				return err
			}); err != nil {
				return fmt.Errorf("resolve %s: %w", t, err)
			}
			delete(byKey, key)
			if !resolved {
				continue
			}
			at := now
			existing.ResolvedAt = &at
			existing.ResolvedBy = SystemActor
			existing.UpdatedAt = now
			report.Resolved = append(report.Resolved, existing)
			m.metrics.ObserveAlert(string(t), "resolved")
			m.publish(ctx, "ward:"+snap.Ward, events.AlertResolvedV1{
				AlertID:    existing.ID,
				AlertType:  string(existing.Type),
				Department: existing.Department,
				ResolvedBy: SystemActor,
				ResolvedAt: now,
			})
		}
	}
	return nil
}

// evaluate returns the alerts that should be active for a ward. Critical and
// high capacity are mutually exclusive.
func (m *Monitor) evaluate(snap WardOccupancySnapshot) map[Type]Alert {
	out := map[Type]Alert{}
	actions := wardActions
	if strings.EqualFold(snap.Ward, "ICU") {
		actions = icuActions
	}

	pct := snap.Percent()
	switch {
	case pct >= m.thresholds.CriticalPct:
		out[TypeCapacityCritical] = Alert{
			Type:           TypeCapacityCritical,
			Priority:       PriorityCritical,
			Title:          fmt.Sprintf("%s at critical capacity", snap.Ward),
			Message:        fmt.Sprintf("%s is %.1f%% occupied (%d of %d beds)", snap.Ward, snap.Rate, snap.Occupied, snap.Total),
			Department:     snap.Ward,
			ActionRequired: true,
			Details: CapacityDetails{
				Ward: snap.Ward, Total: snap.Total, Occupied: snap.Occupied, Rate: snap.Rate,
				Threshold: m.thresholds.CriticalPct, Critical: true,
				RecommendedActions: append([]string(nil), actions...),
			},
		}
	case pct >= m.thresholds.HighPct:
		out[TypeCapacityHigh] = Alert{
			Type:           TypeCapacityHigh,
			Priority:       PriorityHigh,
			Title:          fmt.Sprintf("%s occupancy high", snap.Ward),
			Message:        fmt.Sprintf("%s is %.1f%% occupied (%d of %d beds)", snap.Ward, snap.Rate, snap.Occupied, snap.Total),
			Department:     snap.Ward,
			ActionRequired: true,
			Details: CapacityDetails{
				Ward: snap.Ward, Total: snap.Total, Occupied: snap.Occupied, Rate: snap.Rate,
				Threshold:          m.thresholds.HighPct,
				RecommendedActions: append([]string(nil), actions[:1]...),
			},
		}
	}

	if len(snap.CleaningOverdue) > 0 {
		out[TypeCleaningOverdue] = Alert{
			Type:           TypeCleaningOverdue,
			Priority:       PriorityMedium,
			Title:          fmt.Sprintf("Cleaning overdue in %s", snap.Ward),
			Message:        fmt.Sprintf("%d bed(s) in %s have been in cleaning longer than %s", len(snap.CleaningOverdue), snap.Ward, m.thresholds.CleaningOverdueAfter),
			Department:     snap.Ward,
			ActionRequired: true,
			Details: CleaningDetails{
				Ward:         snap.Ward,
				BedIDs:       append([]string(nil), snap.CleaningOverdue...),
				OldestSince:  snap.OldestCleaning,
				OverdueAfter: m.thresholds.CleaningOverdueAfter,
			},
		}
	}
	return out
}

// Acknowledge records that by has seen the alert. Acknowledging twice returns
// the alert unchanged.
func (m *Monitor) Acknowledge(ctx context.Context, id, by string) (Alert, error) {
	if strings.TrimSpace(by) == "" {
		return Alert{}, ErrMissingActor
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, err := m.store.Acknowledge(ctx, id, by, now); err != nil {
		return Alert{}, err
	}
	a, err := m.store.Get(ctx, id)
	if err != nil {
		return Alert{}, err
	}
	if !a.Active() {
		return a, ErrAlreadyResolved
	}
	m.metrics.ObserveAlert(string(a.Type), "acknowledged")
	return a, nil
}

// Resolve closes an alert on behalf of by.
func (m *Monitor) Resolve(ctx context.Context, id, by string) (Alert, error) {
	if strings.TrimSpace(by) == "" {
		return Alert{}, ErrMissingActor
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	ok, err := m.store.Resolve(ctx, id, by, now)
	if err != nil {
		return Alert{}, err
	}
	a, err := m.store.Get(ctx, id)
	if err != nil {
		return Alert{}, err
	}
	if !ok {
		return a, ErrAlreadyResolved
	}
	m.metrics.ObserveAlert(string(a.Type), "resolved")
	m.publish(ctx, "ward:"+a.Department, events.AlertResolvedV1{
		AlertID:    a.ID,
		AlertType:  string(a.Type),
		Department: a.Department,
		ResolvedBy: by,
		ResolvedAt: now,
	})
	return a, nil
}

// List returns alerts for display, highest priority first.
func (m *Monitor) List(ctx context.Context, filter ListFilter) ([]Alert, error) {
	list, err := m.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	SortForDisplay(list)
	return list, nil
}

func (m *Monitor) write(ctx context.Context, op func(ctx context.Context) error) error {
	return m.retry.Do(ctx, func(ctx context.Context, _ int) error {
		err := op(ctx)
		if errors.Is(err, ErrAlertNotFound) || errors.Is(err, ErrAlreadyResolved) {
			return retry.Permanent(err)
		}
		return err
	})
}

func (m *Monitor) publish(ctx context.Context, aggregate string, evt events.CanonicalEvent) {
	if err := m.publisher.Publish(ctx, aggregate, evt); err != nil {
		m.logger.Warn("alert event publish failed", "type", evt.EventType(), "error", err)
	}
}
