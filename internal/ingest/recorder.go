package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/centaurhq/centaur/internal/store"
	"github.com/centaurhq/centaur/pkg/models"
	"github.com/google/uuid"
)

const (
	backoffStart = 1 * time.Second
	backoffCap   = 8 * time.Second
)

// Recorder appends immutable event records inside a retried atomic
// transaction that also increments the owning error's aggregate counter.
type Recorder struct {
	store store.Store

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewRecorder(s store.Store) *Recorder {
	return &Recorder{store: s, sleep: sleepCtx}
}

// Record commits the event. Transient contention failures are retried with
// exponential backoff (1s, 2s, 4s, capped at 8s) without an attempt
// ceiling: losing an error event is worse than a slow response. Only a
// non-transient failure or context cancellation ends the loop early.
func (r *Recorder) Record(ctx context.Context, event *models.Event) (*models.Event, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.Created.IsZero() {
		event.Created = time.Now().UTC()
	}

	backoff := backoffStart
	for attempt := 1; ; attempt++ {
		err := r.store.InsertEventTx(ctx, event)
		if err == nil {
			return event, nil
		}
		if !store.IsTransient(err) {
			return nil, fmt.Errorf("record event: %w", err)
		}

		slog.Warn("event transaction contended, retrying",
			"error_id", event.ErrorID,
			"attempt", attempt,
			"backoff", backoff)

		if err := r.sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("record event: %w", err)
		}
		if backoff *= 2; backoff > backoffCap {
			backoff = backoffCap
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
