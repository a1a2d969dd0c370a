package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	LevelError   = "ERROR"
	LevelWarning = "WARNING"
	LevelInfo    = "INFO"
)

// Error represents a deduplicated group of failure occurrences sharing the
// same (exception_kind, fingerprint, line_number) triple. The triple is
// unique; OriginPath is kept only for display and may be arbitrarily long,
// which is why it never participates in the uniqueness constraint.
type Error struct {
	ID            uuid.UUID `db:"id"             json:"id"`
	ExceptionKind string    `db:"exception_kind" json:"exception_kind"`
	Fingerprint   string    `db:"fingerprint"    json:"fingerprint"`
	Summary       string    `db:"summary"        json:"summary"`
	OriginPath    string    `db:"origin_path"    json:"origin_path"`
	LineNumber    int       `db:"line_number"    json:"line_number"`
	Level         string    `db:"level"          json:"level"`
	IsResolved    bool      `db:"is_resolved"    json:"is_resolved"`
	EventCount    int       `db:"event_count"    json:"event_count"`
	LastEvent     time.Time `db:"last_event"     json:"last_event"`
	CreatedAt     time.Time `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"     json:"updated_at"`
}

// DedupKey identifies an Error independent of storage. Hash is the
// fixed-length fingerprint of the unique path signature.
type DedupKey struct {
	ExceptionKind string
	Hash          string
	LineNumber    int
}
