package alerts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
	"github.com/wolfman30/hospital-bed-platform/internal/events"
	"github.com/wolfman30/hospital-bed-platform/internal/retry"
)

var fastRetry = retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}

func ward(name, prefix string, total, occupied int) []beds.Bed {
	var out []beds.Bed
	for i := 1; i <= total; i++ {
		status := beds.StatusVacant
		if i <= occupied {
			status = beds.StatusOccupied
		}
		out = append(out, beds.Bed{ID: fmt.Sprintf("%s-%02d", prefix, i), Ward: name, Status: status})
	}
	return out
}

type fixture struct {
	clock   time.Time
	inv     *beds.MemoryInventory
	store   *MemoryStore
	events  *events.Recorder
	monitor *Monitor
}

func newFixture(t *testing.T, seed []beds.Bed) *fixture {
	t.Helper()
	f := &fixture{clock: time.Date(2026, 2, 3, 12, 0, 0, 0, time.UTC), store: NewMemoryStore(), events: events.NewRecorder()}
	now := func() time.Time { return f.clock }
	f.inv = beds.NewMemoryInventory(seed, nil).WithClock(now)
	f.monitor = NewMonitor(f.inv, f.store, f.events, DefaultThresholds(), nil).WithRetry(fastRetry).WithClock(now)
	return f
}

func TestSweepICUFullRaisesOneCriticalAlertThenResolves(t *testing.T) {
	f := newFixture(t, ward("ICU", "ICU", 5, 5))
	ctx := context.Background()

	report, err := f.monitor.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, report.Raised, 1)
	alert := report.Raised[0]
	assert.Equal(t, TypeCapacityCritical, alert.Type)
	assert.Equal(t, "ICU", alert.Department)
	assert.Equal(t, PriorityCritical, alert.Priority)
	assert.True(t, alert.ActionRequired)
	assert.Equal(t, 100.0, alert.Metadata()["occupancy_rate"])
	assert.Contains(t, alert.Metadata()["recommended_actions"], "Activate surge protocols")

	active, err := f.store.Active(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	ok, err := f.inv.CompareAndSwapStatus(ctx, "ICU-01", beds.StatusOccupied, beds.StatusCleaning)
	require.NoError(t, err)
	require.True(t, ok)

	report, err = f.monitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, report.Raised)
	require.Len(t, report.Resolved, 1)
	assert.Equal(t, alert.ID, report.Resolved[0].ID)
	assert.Equal(t, SystemActor, report.Resolved[0].ResolvedBy)

	stored, err := f.store.Get(ctx, alert.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.ResolvedAt, "resolved alerts are kept")
	assert.Equal(t, []string{events.TypeAlertRaised, events.TypeAlertResolved}, f.events.Types())
}

func TestSweepIsIdempotent(t *testing.T) {
	f := newFixture(t, append(ward("ICU", "ICU", 5, 5), ward("General", "GEN", 20, 17)...))
	ctx := context.Background()

	first, err := f.monitor.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, first.Raised, 2)
	writes := f.store.Writes()
	created := map[string]time.Time{}
	for _, a := range first.Raised {
		created[a.ID] = a.CreatedAt
	}

	f.clock = f.clock.Add(10 * time.Minute)
	second, err := f.monitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Raised)
	assert.Empty(t, second.Refreshed)
	assert.Empty(t, second.Resolved)
	assert.Equal(t, writes, f.store.Writes(), "unchanged occupancy must not write")
	require.Len(t, second.Active, 2)
	for _, a := range second.Active {
		assert.Equal(t, created[a.ID], a.CreatedAt)
	}
	assert.Equal(t, f.clock, f.monitor.LastRun())
}

func TestSweepRefreshesChangedDetailsWithoutNewAlert(t *testing.T) {
	f := newFixture(t, ward("General", "GEN", 20, 19))
	ctx := context.Background()

	first, err := f.monitor.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, first.Raised, 1)

	_, err = f.inv.CompareAndSwapStatus(ctx, "GEN-20", beds.StatusVacant, beds.StatusReserved)
	require.NoError(t, err)
	_, err = f.inv.CompareAndSwapStatus(ctx, "GEN-20", beds.StatusReserved, beds.StatusOccupied)
	require.NoError(t, err)

	f.clock = f.clock.Add(time.Minute)
	second, err := f.monitor.Sweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, second.Raised)
	require.Len(t, second.Refreshed, 1)
	assert.Equal(t, first.Raised[0].ID, second.Refreshed[0].ID)
	assert.Equal(t, first.Raised[0].CreatedAt, second.Refreshed[0].CreatedAt)
	assert.Equal(t, f.clock, second.Refreshed[0].UpdatedAt)
	assert.Equal(t, 100.0, second.Refreshed[0].Metadata()["occupancy_rate"])
}

func TestSweepCriticalAndHighAreExclusive(t *testing.T) {
	f := newFixture(t, ward("General", "GEN", 20, 18))
	ctx := context.Background()

	first, err := f.monitor.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, first.Raised, 1)
	assert.Equal(t, TypeCapacityCritical, first.Raised[0].Type)

	_, err = f.inv.CompareAndSwapStatus(ctx, "GEN-01", beds.StatusOccupied, beds.StatusCleaning)
	require.NoError(t, err)

	second, err := f.monitor.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, second.Raised, 1)
	assert.Equal(t, TypeCapacityHigh, second.Raised[0].Type)
	assert.Equal(t, PriorityHigh, second.Raised[0].Priority)
	require.Len(t, second.Resolved, 1)
	assert.Equal(t, TypeCapacityCritical, second.Resolved[0].Type)
	require.Len(t, second.Active, 1)
}

func TestSweepCleaningOverdue(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.inv.PutBed(beds.Bed{ID: "GEN-01", Ward: "General", Status: beds.StatusCleaning, LastChange: f.clock.Add(-3 * time.Hour)})
	f.inv.PutBed(beds.Bed{ID: "GEN-02", Ward: "General", Status: beds.StatusCleaning, LastChange: f.clock.Add(-30 * time.Minute)})
	f.inv.PutBed(beds.Bed{ID: "GEN-03", Ward: "General", Status: beds.StatusVacant})

	report, err := f.monitor.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, report.Raised, 1)
	a := report.Raised[0]
	assert.Equal(t, TypeCleaningOverdue, a.Type)
	assert.Equal(t, PriorityMedium, a.Priority)
	details, ok := a.Details.(CleaningDetails)
	require.True(t, ok)
	assert.Equal(t, []string{"GEN-01"}, details.BedIDs)

	_, err = f.inv.CompareAndSwapStatus(ctx, "GEN-01", beds.StatusCleaning, beds.StatusVacant)
	require.NoError(t, err)
	report, err = f.monitor.Sweep(ctx)
	require.NoError(t, err)
	require.Len(t, report.Resolved, 1)
	assert.Equal(t, TypeCleaningOverdue, report.Resolved[0].Type)
}

type flakyStore struct {
	*MemoryStore
	failDepartment string
}

func (s *flakyStore) Insert(ctx context.Context, a Alert) error {
	if a.Department == s.failDepartment {
		return errors.New("disk full")
	}
	return s.MemoryStore.Insert(ctx, a)
}

func TestSweepIsolatesWardFailures(t *testing.T) {
	inv := beds.NewMemoryInventory(append(ward("Cardiac", "CAR", 4, 4), ward("ICU", "ICU", 5, 5)...), nil)
	store := &flakyStore{MemoryStore: NewMemoryStore(), failDepartment: "Cardiac"}
	monitor := NewMonitor(inv, store, nil, DefaultThresholds(), nil).WithRetry(fastRetry)

	report, err := monitor.Sweep(context.Background())
	require.NoError(t, err)
	require.Contains(t, report.FailedWards, "Cardiac")
	assert.Contains(t, report.FailedWards["Cardiac"], "disk full")
	require.Len(t, report.Raised, 1)
	assert.Equal(t, "ICU", report.Raised[0].Department)
}

type brokenInventory struct{ beds.BedReader }

func (brokenInventory) ListBeds(context.Context, string) ([]beds.Bed, error) {
	return nil, errors.New("inventory offline")
}

func TestSweepFailsWhenInventoryUnavailable(t *testing.T) {
	monitor := NewMonitor(brokenInventory{}, NewMemoryStore(), nil, DefaultThresholds(), nil).WithRetry(fastRetry)
	_, err := monitor.Sweep(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inventory offline")
	assert.True(t, monitor.LastRun().IsZero())
}

func TestAcknowledgeAndResolve(t *testing.T) {
	f := newFixture(t, ward("ICU", "ICU", 5, 5))
	ctx := context.Background()
	report, err := f.monitor.Sweep(ctx)
	require.NoError(t, err)
	id := report.Raised[0].ID

	_, err = f.monitor.Acknowledge(ctx, id, "")
	assert.ErrorIs(t, err, ErrMissingActor)

	acked, err := f.monitor.Acknowledge(ctx, id, "charge-nurse")
	require.NoError(t, err)
	assert.Equal(t, "charge-nurse", acked.AcknowledgedBy)
	require.NotNil(t, acked.AcknowledgedAt)

	again, err := f.monitor.Acknowledge(ctx, id, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, "charge-nurse", again.AcknowledgedBy)

	resolved, err := f.monitor.Resolve(ctx, id, "bed-manager")
	require.NoError(t, err)
	assert.Equal(t, "bed-manager", resolved.ResolvedBy)

	_, err = f.monitor.Resolve(ctx, id, "bed-manager")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	_, err = f.monitor.Acknowledge(ctx, id, "late")
	assert.ErrorIs(t, err, ErrAlreadyResolved)
	_, err = f.monitor.Resolve(ctx, "missing", "x")
	assert.ErrorIs(t, err, ErrAlertNotFound)

	all, err := f.monitor.List(ctx, ListFilter{IncludeResolved: true})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestSnapshotsComputeRates(t *testing.T) {
	now := time.Now()
	snaps := Snapshots(append(ward("ICU", "ICU", 3, 1), ward("General", "GEN", 4, 4)...), now, time.Hour)
	require.Len(t, snaps, 2)
	assert.Equal(t, "General", snaps[0].Ward)
	assert.Equal(t, 100.0, snaps[0].Rate)
	assert.Equal(t, 33.3, snaps[1].Rate)
}

func TestThresholdsCompareUnroundedOccupancy(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		occupied int
		want     Type
		rate     float64
	}{
		{name: "just under critical", total: 4000, occupied: 3599, want: TypeCapacityHigh, rate: 90.0},
		{name: "exactly critical", total: 10, occupied: 9, want: TypeCapacityCritical, rate: 90.0},
		{name: "just under high", total: 4000, occupied: 3399, want: "", rate: 85.0},
		{name: "exactly high", total: 20, occupied: 17, want: TypeCapacityHigh, rate: 85.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, ward("ICU", "ICU", tt.total, tt.occupied))
			report, err := f.monitor.Sweep(context.Background())
			require.NoError(t, err)
			require.Len(t, report.Wards, 1)
			assert.Equal(t, tt.rate, report.Wards[0].Rate)

			if tt.want == "" {
				assert.Empty(t, report.Active)
				return
			}
			require.Len(t, report.Active, 1)
			assert.Equal(t, tt.want, report.Active[0].Type)
		})
	}
}
