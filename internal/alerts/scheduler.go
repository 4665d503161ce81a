package alerts

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

// ErrSchedulerRunning is returned when Start is called twice.
var ErrSchedulerRunning = errors.New("alerts: scheduler already running")

// Lease decides whether this process should run the current tick.
type Lease interface {
	Acquire(ctx context.Context) (bool, error)
}

// RedisLease is a best-effort cross-replica lease built on SET NX PX. The
// key expires on its own, so a crashed holder never blocks later ticks.
type RedisLease struct {
	client redis.UniversalClient
	key    string
	owner  string
	ttl    time.Duration
}

// NewRedisLease creates a lease on key held for ttl by owner.
func NewRedisLease(client redis.UniversalClient, key, owner string, ttl time.Duration) *RedisLease {
	if client == nil {
		panic("alerts: redis client cannot be nil")
	}
	if key == "" {
		key = "hospital:alerts:sweep-lease"
	}
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	return &RedisLease{client: client, key: key, owner: owner, ttl: ttl}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.owner, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("alerts: acquire lease: %w", err)
	}
	return ok, nil
}

// Scheduler runs Monitor sweeps on a fixed cadence and on request.
type Scheduler struct {
	monitor  *Monitor
	interval time.Duration
	lease    Lease
	logger   *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	pending chan struct{}
}

// NewScheduler creates a scheduler for monitor.
func NewScheduler(monitor *Monitor, interval time.Duration, logger *logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	return &Scheduler{
		monitor:  monitor,
		interval: interval,
		logger:   logger,
		pending:  make(chan struct{}, 1),
	}
}

// WithLease makes periodic ticks conditional on holding lease.
func (s *Scheduler) WithLease(lease Lease) *Scheduler {
	s.lease = lease
	return s
}

// Start launches the sweep loop. It returns immediately; Stop ends the loop.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrSchedulerRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(loopCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Trigger runs one sweep synchronously, bypassing the lease.
func (s *Scheduler) Trigger(ctx context.Context) (SweepReport, error) {
	return s.monitor.Sweep(ctx)
}

// TriggerAsync asks the loop for an extra sweep without waiting. Requests
// coalesce while one is pending.
func (s *Scheduler) TriggerAsync() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// LastRun returns when the last sweep finished.
func (s *Scheduler) LastRun() time.Time {
	return s.monitor.LastRun()
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("alert scheduler started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("alert scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx, true)
		case <-s.pending:
			s.tick(ctx, false)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context, periodic bool) {
	if periodic && s.lease != nil {
		ok, err := s.lease.Acquire(ctx)
		if err != nil {
			s.logger.Warn("sweep lease unavailable, sweeping locally", "error", err)
		} else if !ok {
			s.logger.Debug("sweep lease held elsewhere, skipping tick")
			return
		}
	}
	if _, err := s.monitor.Sweep(ctx); err != nil && ctx.Err() == nil {
		s.logger.Error("alert sweep failed", "error", err)
	}
}
