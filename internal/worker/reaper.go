package worker

import (
	"context"
	"time"

	"github.com/nguyentantai21042004/protocol-flow/internal/logger"
)

// StaleReason is recorded on tasks the reaper fails.
const StaleReason = "internal: task abandoned by a stopped worker"

// Reaper fails RUNNING tasks whose worker died before finishing them.
// A task is stale once it has not been updated for MaxAge.
type Reaper struct {
	tasks    StaleFailer
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	logger   logger.Logger
}

func NewReaper(tasks StaleFailer, maxAge, interval time.Duration, log logger.Logger) *Reaper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reaper{
		tasks:    tasks,
		maxAge:   maxAge,
		interval: interval,
		now:      time.Now,
		logger:   log.With("component", "reaper"),
	}
}

// Run sweeps once immediately and then every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.Sweep(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Sweep fails every stale task and returns how many were affected.
func (r *Reaper) Sweep(ctx context.Context) int64 {
	n, err := r.tasks.FailStale(ctx, r.now().Add(-r.maxAge), StaleReason)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Error(ctx, "Stale task sweep failed: %v", err)
		}
		return 0
	}
	if n > 0 {
		r.logger.Warn(ctx, "Marked %d stale task(s) as ERROR", n)
	}
	return n
}
