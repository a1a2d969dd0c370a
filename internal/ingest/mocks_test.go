package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/centaurhq/centaur/internal/store"
	"github.com/centaurhq/centaur/pkg/models"
	"github.com/google/uuid"
)

// --- Mock Store ---

type mockStore struct {
	mu sync.Mutex

	errorsByKey map[models.DedupKey]*models.Error
	events      []*models.Event

	getOrCreateCalls int
	insertCalls      int
	// insertFailures are returned by InsertEventTx in order before it
	// starts succeeding.
	insertFailures []error
	getOrCreateErr error
}

func newMockStore() *mockStore {
	return &mockStore{errorsByKey: make(map[models.DedupKey]*models.Error)}
}

func (m *mockStore) Ping(_ context.Context) error { return nil }

func (m *mockStore) GetOrCreateError(_ context.Context, key models.DedupKey, defaults store.ErrorDefaults) (*models.Error, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getOrCreateCalls++
	if m.getOrCreateErr != nil {
		return nil, false, m.getOrCreateErr
	}
	if e, ok := m.errorsByKey[key]; ok {
		copied := *e
		return &copied, false, nil
	}
	now := time.Now().UTC()
	e := &models.Error{
		ID:            uuid.New(),
		ExceptionKind: key.ExceptionKind,
		Fingerprint:   key.Hash,
		Summary:       defaults.Summary,
		OriginPath:    defaults.OriginPath,
		LineNumber:    key.LineNumber,
		Level:         defaults.Level,
		LastEvent:     now,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	m.errorsByKey[key] = e
	copied := *e
	return &copied, true, nil
}

func (m *mockStore) GetError(_ context.Context, id uuid.UUID) (*models.Error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.errorsByKey {
		if e.ID == id {
			copied := *e
			return &copied, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockStore) ListErrors(_ context.Context, _ store.ErrorFilter) ([]*models.Error, int, error) {
	return nil, 0, nil
}

func (m *mockStore) SetErrorResolved(_ context.Context, _ uuid.UUID, _ bool) (*models.Error, error) {
	return nil, store.ErrNotFound
}

func (m *mockStore) InsertEventTx(_ context.Context, event *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertCalls++
	if len(m.insertFailures) > 0 {
		err := m.insertFailures[0]
		m.insertFailures = m.insertFailures[1:]
		return err
	}
	copied := *event
	m.events = append(m.events, &copied)
	for _, e := range m.errorsByKey {
		if e.ID == event.ErrorID {
			e.EventCount++
			e.LastEvent = event.Created
		}
	}
	return nil
}

func (m *mockStore) ListEvents(_ context.Context, _ uuid.UUID, _, _ int) ([]*models.Event, int, error) {
	return nil, 0, nil
}

func (m *mockStore) EventHistogram(_ context.Context, _ uuid.UUID, _ time.Time) ([]store.HistogramBucket, error) {
	return nil, nil
}

func (m *mockStore) SelectExpiredEvents(_ context.Context, _ time.Time, _ int) ([]store.ExpiredEvent, error) {
	return nil, nil
}

func (m *mockStore) DeleteEvents(_ context.Context, _ []uuid.UUID) (int64, error) { return 0, nil }

func (m *mockStore) AdjustEventCount(_ context.Context, _ uuid.UUID, _ int) error { return nil }

func (m *mockStore) GetAPIKeyByPrefix(_ context.Context, _ string) ([]*models.APIKey, error) {
	return nil, nil
}

func (m *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (m *mockStore) singleError() *models.Error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.errorsByKey {
		copied := *e
		return &copied
	}
	return nil
}

func (m *mockStore) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

// --- Mock Cache ---

type mockCache struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	setErr  error
	gets    int
	sets    int
	deletes int
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string][]byte)}
}

func (m *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	return nil
}

func (m *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *mockCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deletes++
	delete(m.data, key)
	return nil
}

func (m *mockCache) Ping(_ context.Context) error { return nil }

func (m *mockCache) IncrWithExpiry(_ context.Context, _ string, _ time.Duration) (int64, error) {
	return 1, nil
}

func (m *mockCache) AcquireLock(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return true, nil
}

func (m *mockCache) ReleaseLock(_ context.Context, _ string) error { return nil }
