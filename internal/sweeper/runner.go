package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/centaurhq/centaur/internal/cache"
)

// lockTTL bounds how long a replica can hold the sweep lock; a crashed
// holder frees it by expiry.
const lockTTL = 10 * time.Minute

// Runner consumes the named sweep queue serially: at most one pass runs at
// a time, and a pass can enqueue at most the next one. Pending requests
// coalesce, so triggering an already-queued sweep is a no-op.
type Runner struct {
	queueName string
	cache     cache.Cache
	requests  chan time.Duration
}

func NewRunner(queueName string, c cache.Cache) *Runner {
	return &Runner{
		queueName: queueName,
		cache:     c,
		requests:  make(chan time.Duration, 1),
	}
}

// Schedule enqueues a sweep pass after delay. Never blocks.
func (r *Runner) Schedule(delay time.Duration) {
	select {
	case r.requests <- delay:
	default:
		// A pass is already queued; it will pick up the same work.
	}
}

// Run serves the queue until the context is cancelled. A Redis lock keyed
// by queue name keeps multiple replicas from sweeping concurrently; when
// the lock is held elsewhere the request is dropped, since the holder is
// already doing the work.
func (r *Runner) Run(ctx context.Context, s *Sweeper) {
	slog.Info("sweep runner started", "queue", r.queueName)
	defer s.Drain()

	for {
		var delay time.Duration
		select {
		case <-ctx.Done():
			return
		case delay = <-r.requests:
		}

		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				t.Stop()
				return
			case <-t.C:
			}
		}

		r.runOnce(ctx, s)
	}
}

func (r *Runner) runOnce(ctx context.Context, s *Sweeper) {
	lockKey := cache.SweepLockKey(r.queueName)
	ok, err := r.cache.AcquireLock(ctx, lockKey, lockTTL)
	if err != nil {
		slog.Warn("sweep lock unavailable, proceeding unlocked", "error", err)
	} else if !ok {
		slog.Info("sweep already running elsewhere, skipping", "queue", r.queueName)
		return
	} else {
		defer func() {
			if err := r.cache.ReleaseLock(ctx, lockKey); err != nil {
				slog.Warn("sweep lock release failed", "error", err)
			}
		}()
	}

	if _, err := s.Sweep(ctx); err != nil {
		slog.Error("sweep pass failed", "queue", r.queueName, "error", err)
	}
}
