package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/centaurhq/centaur/pkg/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errorColumns = `id, exception_kind, fingerprint, summary, origin_path, line_number, level, is_resolved, event_count, last_event, created_at, updated_at`

const eventColumns = `id, error_id, created, request_method, request_url, request_querystring, request_repr, request_snapshot, stack_snapshot, app_version, logged_in_user_email`

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Errors ---

func (s *PostgresStore) GetOrCreateError(ctx context.Context, key models.DedupKey, defaults ErrorDefaults) (*models.Error, bool, error) {
	now := time.Now().UTC()
	var e models.Error

	// INSERT ... ON CONFLICT DO NOTHING is atomic under the unique index on
	// the dedup triple, so concurrent first occurrences converge on one row
	// without any merge pass afterwards.
	err := s.pool.QueryRow(ctx,
		`INSERT INTO errors (`+errorColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, false, 0, $8, $8, $8)
		 ON CONFLICT (exception_kind, fingerprint, line_number) DO NOTHING
		 RETURNING `+errorColumns,
		uuid.New(), key.ExceptionKind, key.Hash, defaults.Summary,
		defaults.OriginPath, key.LineNumber, defaults.Level, now,
	).Scan(errorFields(&e)...)
	if err == nil {
		return &e, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("create error row: %w", err)
	}

	// Conflict: the row already exists, fetch it.
	err = s.pool.QueryRow(ctx,
		`SELECT `+errorColumns+` FROM errors
		 WHERE exception_kind = $1 AND fingerprint = $2 AND line_number = $3`,
		key.ExceptionKind, key.Hash, key.LineNumber,
	).Scan(errorFields(&e)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, ErrNotFound
	}
	if err != nil {
		return nil, false, fmt.Errorf("get error by dedup key: %w", err)
	}
	return &e, false, nil
}

func (s *PostgresStore) GetError(ctx context.Context, id uuid.UUID) (*models.Error, error) {
	var e models.Error
	err := s.pool.QueryRow(ctx,
		`SELECT `+errorColumns+` FROM errors WHERE id = $1`, id,
	).Scan(errorFields(&e)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get error: %w", err)
	}
	return &e, nil
}

func (s *PostgresStore) ListErrors(ctx context.Context, filter ErrorFilter) ([]*models.Error, int, error) {
	conditions := []string{"true"}
	args := []any{}
	argIdx := 1

	if filter.UserEmail != "" {
		conditions = append(conditions, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM events ev WHERE ev.error_id = errors.id AND ev.logged_in_user_email = $%d)", argIdx))
		args = append(args, filter.UserEmail)
		argIdx++
	}
	if filter.Level != "" {
		conditions = append(conditions, fmt.Sprintf("level = $%d", argIdx))
		args = append(args, filter.Level)
		argIdx++
	}
	if filter.Resolved != nil {
		conditions = append(conditions, fmt.Sprintf("is_resolved = $%d", argIdx))
		args = append(args, *filter.Resolved)
		argIdx++
	}

	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM errors WHERE " + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count errors: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	dataQuery := fmt.Sprintf(
		`SELECT `+errorColumns+` FROM errors WHERE %s ORDER BY last_event DESC LIMIT $%d OFFSET $%d`,
		where, argIdx, argIdx+1)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list errors: %w", err)
	}
	defer rows.Close()

	var result []*models.Error
	for rows.Next() {
		var e models.Error
		if err := rows.Scan(errorFields(&e)...); err != nil {
			return nil, 0, fmt.Errorf("scan error: %w", err)
		}
		result = append(result, &e)
	}
	return result, total, rows.Err()
}

func (s *PostgresStore) SetErrorResolved(ctx context.Context, id uuid.UUID, resolved bool) (*models.Error, error) {
	var e models.Error
	err := s.pool.QueryRow(ctx,
		`UPDATE errors SET is_resolved = $2, updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+errorColumns, id, resolved,
	).Scan(errorFields(&e)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("set error resolved: %w", err)
	}
	return &e, nil
}

// --- Events ---

func (s *PostgresStore) InsertEventTx(ctx context.Context, event *models.Event) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// Re-read the error row by identity inside the transaction; an
		// in-memory copy may be stale across recorder retries.
		var count int
		err := tx.QueryRow(ctx,
			`SELECT event_count FROM errors WHERE id = $1 FOR UPDATE`,
			event.ErrorID).Scan(&count)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock error row: %w", err)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO events (`+eventColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			event.ID, event.ErrorID, event.Created, event.RequestMethod,
			event.RequestURL, event.RequestQuerystring, event.RequestRepr,
			event.RequestSnapshot, event.StackSnapshot, event.AppVersion,
			event.LoggedInUserEmail)
		if err != nil {
			if isDuplicateKeyError(err) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("insert event: %w", err)
		}

		_, err = tx.Exec(ctx,
			`UPDATE errors SET event_count = event_count + 1, last_event = $2, updated_at = NOW()
			 WHERE id = $1`,
			event.ErrorID, event.Created)
		if err != nil {
			return fmt.Errorf("bump event count: %w", err)
		}
		return nil
	})
}

func (s *PostgresStore) ListEvents(ctx context.Context, errorID uuid.UUID, page, limit int) ([]*models.Event, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM events WHERE error_id = $1`, errorID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count events: %w", err)
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * limit

	rows, err := s.pool.Query(ctx,
		`SELECT `+eventColumns+` FROM events
		 WHERE error_id = $1 ORDER BY created DESC LIMIT $2 OFFSET $3`,
		errorID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []*models.Event
	for rows.Next() {
		var ev models.Event
		if err := rows.Scan(&ev.ID, &ev.ErrorID, &ev.Created, &ev.RequestMethod,
			&ev.RequestURL, &ev.RequestQuerystring, &ev.RequestRepr,
			&ev.RequestSnapshot, &ev.StackSnapshot, &ev.AppVersion,
			&ev.LoggedInUserEmail); err != nil {
			return nil, 0, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, &ev)
	}
	return events, total, rows.Err()
}

func (s *PostgresStore) EventHistogram(ctx context.Context, errorID uuid.UUID, since time.Time) ([]HistogramBucket, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT date_trunc('hour', created) AS hour, COUNT(*)
		 FROM events WHERE error_id = $1 AND created >= $2
		 GROUP BY hour ORDER BY hour`, errorID, since)
	if err != nil {
		return nil, fmt.Errorf("event histogram: %w", err)
	}
	defer rows.Close()

	var buckets []HistogramBucket
	for rows.Next() {
		var b HistogramBucket
		if err := rows.Scan(&b.Hour, &b.Count); err != nil {
			return nil, fmt.Errorf("scan histogram bucket: %w", err)
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

// --- Retention ---

func (s *PostgresStore) SelectExpiredEvents(ctx context.Context, cutoff time.Time, limit int) ([]ExpiredEvent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, error_id FROM events
		 WHERE created < $1 ORDER BY created ASC LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("select expired events: %w", err)
	}
	defer rows.Close()

	var expired []ExpiredEvent
	for rows.Next() {
		var e ExpiredEvent
		if err := rows.Scan(&e.ID, &e.ErrorID); err != nil {
			return nil, fmt.Errorf("scan expired event: %w", err)
		}
		expired = append(expired, e)
	}
	return expired, rows.Err()
}

func (s *PostgresStore) DeleteEvents(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM events WHERE id = ANY($1)`, ids)
	if err != nil {
		return 0, fmt.Errorf("delete events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) AdjustEventCount(ctx context.Context, errorID uuid.UUID, delta int) error {
	// GREATEST floors the counter at zero; a reconciliation racing a
	// concurrent delete must not drive it negative.
	tag, err := s.pool.Exec(ctx,
		`UPDATE errors SET event_count = GREATEST(event_count + $2, 0), updated_at = NOW()
		 WHERE id = $1`, errorID, delta)
	if err != nil {
		return fmt.Errorf("adjust event count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

// --- helpers ---

func errorFields(e *models.Error) []any {
	return []any{&e.ID, &e.ExceptionKind, &e.Fingerprint, &e.Summary,
		&e.OriginPath, &e.LineNumber, &e.Level, &e.IsResolved,
		&e.EventCount, &e.LastEvent, &e.CreatedAt, &e.UpdatedAt}
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}

// IsTransient reports whether err is a contention failure worth retrying:
// serialization failures, deadlocks, and lock timeouts.
func IsTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
	}
	return false
}
