package workflow

import (
	"context"
	"time"

	"github.com/wolfman30/hospital-bed-platform/pkg/logging"
)

// Reaper periodically rolls back workflows that outlived their deadline.
type Reaper struct {
	coordinator *Coordinator
	interval    time.Duration
	logger      *logging.Logger
}

// NewReaper creates a reaper for coordinator.
func NewReaper(coordinator *Coordinator, interval time.Duration, logger *logging.Logger) *Reaper {
	if logger == nil {
		logger = logging.Default()
	}
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Reaper{coordinator: coordinator, interval: interval, logger: logger}
}

// Start blocks, reaping on every tick until ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	if r.coordinator == nil {
		return
	}
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("workflow reaper started", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.coordinator.Reap(ctx)
		}
	}
}
