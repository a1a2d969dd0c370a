// Package ingest is the failure ingestion pipeline: it turns failed
// responses and recovered panics into deduplicated error groups with one
// stored event per occurrence.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/centaurhq/centaur/internal/cache"
	"github.com/centaurhq/centaur/internal/store"
	"github.com/centaurhq/centaur/pkg/models"
)

// ErrorStore is the deduplicating registry of error groups, fronted by a
// best-effort lookup cache. The cache closes the window where bursty
// concurrent occurrences of a brand-new dedup key would each hit the
// backing store; on a hit the store is not touched at all.
type ErrorStore struct {
	store store.Store
	cache cache.Cache
}

func NewErrorStore(s store.Store, c cache.Cache) *ErrorStore {
	return &ErrorStore{store: s, cache: c}
}

// GetOrCreate resolves a dedup key to its error group, creating the group
// on first occurrence. Three states: cache-hit (no store access), store-hit
// (row existed), store-create. The returned bool reports creation; defaults
// apply only then. Cache failures degrade to store access, never to an
// error.
func (es *ErrorStore) GetOrCreate(ctx context.Context, key models.DedupKey, defaults store.ErrorDefaults) (*models.Error, bool, error) {
	cacheKey := cache.ErrorLookupKey(key)

	if data, ok, err := es.cache.Get(ctx, cacheKey); err != nil {
		slog.Warn("error lookup cache read failed", "error", err)
	} else if ok {
		var e models.Error
		if err := json.Unmarshal(data, &e); err == nil {
			return &e, false, nil
		}
		slog.Warn("error lookup cache entry corrupt, discarding", "key", cacheKey)
		_ = es.cache.Delete(ctx, cacheKey)
	}

	e, created, err := es.store.GetOrCreateError(ctx, key, defaults)
	if err != nil {
		return nil, false, err
	}

	// No expiry: the mapping from dedup key to error id never changes, so
	// the entry stays until the cache itself evicts it.
	if data, err := json.Marshal(e); err == nil {
		if err := es.cache.Set(ctx, cacheKey, data, cache.NoExpiry); err != nil {
			slog.Warn("error lookup cache write failed", "error", err)
		}
	}

	return e, created, nil
}
