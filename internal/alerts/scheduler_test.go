package alerts

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/hospital-bed-platform/internal/beds"
)

func newTestScheduler(t *testing.T, interval time.Duration) (*Scheduler, *MemoryStore) {
	t.Helper()
	inv := beds.NewMemoryInventory(ward("ICU", "ICU", 5, 5), nil)
	store := NewMemoryStore()
	monitor := NewMonitor(inv, store, nil, DefaultThresholds(), nil).WithRetry(fastRetry)
	return NewScheduler(monitor, interval, nil), store
}

func TestSchedulerTriggerUpdatesLastRun(t *testing.T) {
	s, store := newTestScheduler(t, time.Hour)
	require.True(t, s.LastRun().IsZero())

	report, err := s.Trigger(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Raised, 1)
	assert.False(t, s.LastRun().IsZero())

	active, err := store.Active(context.Background())
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestSchedulerStartStop(t *testing.T) {
	s, store := newTestScheduler(t, 10*time.Millisecond)
	require.NoError(t, s.Start(context.Background()))
	assert.True(t, s.Running())
	assert.ErrorIs(t, s.Start(context.Background()), ErrSchedulerRunning)

	require.Eventually(t, func() bool { return store.Writes() > 0 }, time.Second, 5*time.Millisecond)

	s.Stop()
	assert.False(t, s.Running())
	s.Stop()
}

func TestSchedulerTriggerAsync(t *testing.T) {
	s, _ := newTestScheduler(t, time.Hour)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	s.TriggerAsync()
	s.TriggerAsync()
	require.Eventually(t, func() bool { return !s.LastRun().IsZero() }, time.Second, 5*time.Millisecond)
}

type denyLease struct{ calls int }

func (l *denyLease) Acquire(context.Context) (bool, error) {
	l.calls++
	return false, nil
}

type brokenLease struct{}

func (brokenLease) Acquire(context.Context) (bool, error) {
	return false, errors.New("redis down")
}

func TestSchedulerTickHonoursLease(t *testing.T) {
	s, store := newTestScheduler(t, time.Hour)
	lease := &denyLease{}
	s.WithLease(lease)

	s.tick(context.Background(), true)
	assert.Equal(t, 1, lease.calls)
	assert.Zero(t, store.Writes(), "periodic tick must skip without the lease")

	s.tick(context.Background(), false)
	assert.Equal(t, 1, lease.calls, "requested sweeps bypass the lease")
	assert.Equal(t, 1, store.Writes())
}

func TestSchedulerTickSweepsWhenLeaseErrors(t *testing.T) {
	s, store := newTestScheduler(t, time.Hour)
	s.WithLease(brokenLease{})

	s.tick(context.Background(), true)
	assert.Equal(t, 1, store.Writes())
}

func TestRedisLeaseIsExclusiveUntilExpiry(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	ctx := context.Background()

	first := NewRedisLease(client, "", "replica-a", time.Minute)
	second := NewRedisLease(client, "", "replica-b", time.Minute)

	ok, err := first.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	owner, err := mr.Get("hospital:alerts:sweep-lease")
	require.NoError(t, err)
	assert.Equal(t, "replica-a", owner)

	mr.FastForward(2 * time.Minute)
	ok, err = second.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
