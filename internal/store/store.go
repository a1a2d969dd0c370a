package store

import (
	"context"
	"errors"
	"time"

	"github.com/centaurhq/centaur/pkg/models"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	// GetOrCreateError atomically creates the error row for a dedup key or
	// returns the pre-existing one. The bool reports whether this call
	// caused creation.
	GetOrCreateError(ctx context.Context, key models.DedupKey, defaults ErrorDefaults) (*models.Error, bool, error)
	GetError(ctx context.Context, id uuid.UUID) (*models.Error, error)
	ListErrors(ctx context.Context, filter ErrorFilter) ([]*models.Error, int, error)
	SetErrorResolved(ctx context.Context, id uuid.UUID, resolved bool) (*models.Error, error)

	// InsertEventTx runs the atomic record unit: re-read the error row by
	// identity, insert the event, bump event_count and last_event, commit.
	InsertEventTx(ctx context.Context, event *models.Event) error
	ListEvents(ctx context.Context, errorID uuid.UUID, page, limit int) ([]*models.Event, int, error)
	EventHistogram(ctx context.Context, errorID uuid.UUID, since time.Time) ([]HistogramBucket, error)

	SelectExpiredEvents(ctx context.Context, cutoff time.Time, limit int) ([]ExpiredEvent, error)
	DeleteEvents(ctx context.Context, ids []uuid.UUID) (int64, error)
	// AdjustEventCount applies a delta to an error's aggregate counter in
	// its own transaction, re-reading the row fresh. The counter never goes
	// below zero.
	AdjustEventCount(ctx context.Context, errorID uuid.UUID, delta int) error

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
}

// ErrorDefaults are applied only when GetOrCreateError creates the row.
type ErrorDefaults struct {
	Summary    string
	OriginPath string
	Level      string
}

type ErrorFilter struct {
	// UserEmail narrows the listing to errors with at least one event
	// logged for that principal.
	UserEmail string
	Level     string
	Resolved  *bool
	Page      int
	Limit     int
}

// ExpiredEvent is the sweep selection unit: just enough to delete the row
// and attribute the removal to its owning error.
type ExpiredEvent struct {
	ID      uuid.UUID
	ErrorID uuid.UUID
}

// HistogramBucket is one hour of event occurrences.
type HistogramBucket struct {
	Hour  time.Time `json:"hour"`
	Count int       `json:"count"`
}
