// Package sweeper implements the background retention job: events older
// than the retention window are deleted in bounded batches, and the owning
// errors' aggregate counters are reconciled asynchronously afterwards.
package sweeper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/centaurhq/centaur/internal/store"
	"github.com/google/uuid"
)

// Scheduler enqueues a future sweep pass. Injected so the sweeper stays
// decoupled from any specific scheduling mechanism.
type Scheduler interface {
	Schedule(delay time.Duration)
}

// requeueDelay spaces out self-rescheduled continuation passes.
const requeueDelay = 5 * time.Second

// Result summarizes one sweep pass.
type Result struct {
	Deleted     int64
	Affected    int
	Reconciled  int
	Rescheduled bool
}

// Sweeper is the retention job. Sweep passes run serially; never run two
// concurrently.
type Sweeper struct {
	store        store.Store
	scheduler    Scheduler
	window       time.Duration
	batchSize    int
	reconcileCap int

	now func() time.Time

	// pending carries per-error decrements that could not be scheduled
	// within one pass's reconciliation cap, so no removal is ever lost.
	mu      sync.Mutex
	pending map[uuid.UUID]int
	injobs  sync.WaitGroup
}

func New(s store.Store, sched Scheduler, window time.Duration, batchSize, reconcileCap int) *Sweeper {
	return &Sweeper{
		store:        s,
		scheduler:    sched,
		window:       window,
		batchSize:    batchSize,
		reconcileCap: reconcileCap,
		now:          time.Now,
		pending:      make(map[uuid.UUID]int),
	}
}

// Sweep runs one bounded pass: select expired events oldest-first, delete
// them, then schedule asynchronous counter reconciliation for up to the
// per-pass cap of affected errors. The pass reschedules itself while the
// batch came back full or reconciliation backlog remains, and stops on its
// own otherwise. Error rows are never deleted; a group whose counter
// reaches zero stays as a historical record.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	cutoff := s.now().UTC().Add(-s.window)

	expired, err := s.store.SelectExpiredEvents(ctx, cutoff, s.batchSize)
	if err != nil {
		return Result{}, fmt.Errorf("select expired events: %w", err)
	}

	removedPerError := make(map[uuid.UUID]int)
	ids := make([]uuid.UUID, 0, len(expired))
	for _, ev := range expired {
		ids = append(ids, ev.ID)
		removedPerError[ev.ErrorID]++
	}

	deleted, err := s.store.DeleteEvents(ctx, ids)
	if err != nil {
		return Result{}, fmt.Errorf("delete expired events: %w", err)
	}

	s.mu.Lock()
	for errorID, n := range removedPerError {
		s.pending[errorID] += n
	}
	scheduled := make(map[uuid.UUID]int, s.reconcileCap)
	for errorID, n := range s.pending {
		if len(scheduled) == s.reconcileCap {
			break
		}
		scheduled[errorID] = n
		delete(s.pending, errorID)
	}
	backlog := len(s.pending)
	s.mu.Unlock()

	for errorID, n := range scheduled {
		s.injobs.Add(1)
		go s.reconcile(ctx, errorID, n)
	}

	res := Result{
		Deleted:    deleted,
		Affected:   len(removedPerError),
		Reconciled: len(scheduled),
	}

	if len(expired) == s.batchSize || backlog > 0 {
		res.Rescheduled = true
		s.scheduler.Schedule(requeueDelay)
	}

	slog.Info("sweep pass complete",
		"deleted", res.Deleted,
		"affected_errors", res.Affected,
		"reconciled", res.Reconciled,
		"backlog", backlog,
		"rescheduled", res.Rescheduled)

	return res, nil
}

// reconcile decrements one error's counter in its own transaction. The row
// is re-read fresh by the store; an in-memory count is never trusted across
// the async boundary. On failure the delta returns to the backlog so a
// later pass retries it.
func (s *Sweeper) reconcile(ctx context.Context, errorID uuid.UUID, removed int) {
	defer s.injobs.Done()

	err := s.store.AdjustEventCount(ctx, errorID, -removed)
	if err == nil {
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		// The error row is gone; nothing left to reconcile.
		return
	}

	slog.Error("event count reconciliation failed",
		"error_id", errorID, "removed", removed, "error", err)

	s.mu.Lock()
	s.pending[errorID] += removed
	s.mu.Unlock()
	s.scheduler.Schedule(requeueDelay)
}

// Drain blocks until in-flight reconciliations finish. Used on shutdown and
// in tests.
func (s *Sweeper) Drain() {
	s.injobs.Wait()
}
