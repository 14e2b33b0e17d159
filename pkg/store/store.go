// Package store persists per-user saying histories and the global
// content-addressable saying cache.
//
// The Store implements one set of semantics over interchangeable backends
// (in-memory, SQLite file, Redis). Histories are kept newest-first; the
// global cache is keyed by (preset id, exact prompt text), last write wins.
// Lookups that miss the global cache fall back to a linear scan over all
// histories, which is fine at the scale this service runs at.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/sibyl-ai/sibyl/pkg/config"
	"github.com/sibyl-ai/sibyl/pkg/models"
)

// ErrStorage marks backend I/O and serialization failures.
var ErrStorage = errors.New("storage error")

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}

// backend is the minimal persistence surface a Store runs on.
type backend interface {
	// history returns the user's stored history, nil if the user is unknown.
	history(ctx context.Context, userID string) ([]models.Saying, error)
	// setHistory replaces the user's stored history.
	setHistory(ctx context.Context, userID string, h []models.Saying) error
	// cached returns the global cache entry for a serialized key.
	cached(ctx context.Context, key string) (models.Saying, bool, error)
	// setCached overwrites the global cache entry for a serialized key.
	setCached(ctx context.Context, key string, s models.Saying) error
	// allHistories returns every user's history. Iteration order across
	// users is backend-dependent.
	allHistories(ctx context.Context) (map[string][]models.Saying, error)
	// cachedAll returns every global cache entry.
	cachedAll(ctx context.Context) ([]models.Saying, error)
	close() error
}

// Store holds saying histories and the global cache.
type Store struct {
	kind string
	b    backend

	// mu serializes the read-modify-write cycle in Record so concurrent
	// writes for the same user cannot drop each other's entries.
	mu sync.Mutex
}

// Open constructs the Store selected by cfg. Unknown kinds and backends that
// fail to initialize degrade to the in-memory store with a logged warning;
// availability is preferred over persistence.
func Open(cfg config.StorageConfig) *Store {
	switch cfg.Kind {
	case "", "memory":
		return NewMemory()
	case "sqlite":
		s, err := OpenSQLite(cfg.Path)
		if err != nil {
			logrus.WithError(err).WithField("path", cfg.Path).
				Warn("sqlite store unavailable, falling back to in-memory store")
			return NewMemory()
		}
		return s
	case "redis":
		s, err := OpenRedis(cfg.RedisURL)
		if err != nil {
			logrus.WithError(err).Warn("redis store unavailable, falling back to in-memory store")
			return NewMemory()
		}
		return s
	default:
		logrus.WithField("kind", cfg.Kind).
			Warn("unknown storage kind, falling back to in-memory store")
		return NewMemory()
	}
}

// Kind reports which backend the store runs on.
func (s *Store) Kind() string {
	return s.kind
}

// Close releases backend resources.
func (s *Store) Close() error {
	return s.b.close()
}

// Record appends the saying to the user's history. Sayings that did not come
// straight from the model (source other than llm) are also promoted into the
// global cache under their (preset id, prompt) key, overwriting any prior
// entry. Fresh generations are deliberately kept out of the global cache so
// a single bad generation cannot poison it.
func (s *Store) Record(ctx context.Context, userID string, saying models.Saying) (models.Saying, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, err := s.b.history(ctx, userID)
	if err != nil {
		return models.Saying{}, err
	}

	h = append(h, saying)
	sortNewestFirst(h)

	if err := s.b.setHistory(ctx, userID, h); err != nil {
		return models.Saying{}, err
	}

	if saying.Source != models.SourceGenerated {
		if err := s.b.setCached(ctx, encodeKey(saying.Key()), saying); err != nil {
			return models.Saying{}, err
		}
	}

	return saying, nil
}

// LastSaying returns the most recent entry in the user's history.
func (s *Store) LastSaying(ctx context.Context, userID string) (models.Saying, bool, error) {
	h, err := s.b.history(ctx, userID)
	if err != nil {
		return models.Saying{}, false, err
	}
	if len(h) == 0 {
		return models.Saying{}, false, nil
	}
	return h[0], true, nil
}

// Sayings returns the user's history, newest first, truncated to limit.
func (s *Store) Sayings(ctx context.Context, userID string, limit int) ([]models.Saying, error) {
	h, err := s.b.history(ctx, userID)
	if err != nil {
		return nil, err
	}
	if limit < 0 {
		limit = 0
	}
	if len(h) > limit {
		h = h[:limit]
	}
	out := make([]models.Saying, len(h))
	copy(out, h)
	return out, nil
}

// FindCached looks up a saying by exact (prompt, preset id) key: first in
// the global cache, then by scanning every user's history for a matching
// entry that did not come straight from the model. Scan order across users
// is unspecified, so ties between users are non-deterministic.
func (s *Store) FindCached(ctx context.Context, prompt, presetID string) (models.Saying, bool, error) {
	key := models.CacheKey{PresetID: presetID, Prompt: prompt}

	if saying, ok, err := s.b.cached(ctx, encodeKey(key)); err != nil {
		return models.Saying{}, false, err
	} else if ok {
		return saying, true, nil
	}

	all, err := s.b.allHistories(ctx)
	if err != nil {
		return models.Saying{}, false, err
	}
	for _, h := range all {
		for _, saying := range h {
			if saying.Key() == key && saying.Source != models.SourceGenerated {
				return saying, true, nil
			}
		}
	}
	return models.Saying{}, false, nil
}

// AnyCached returns up to limit sayings to serve when nothing targeted is
// available: global cache entries first, then non-generated history entries
// deduplicated by cache key, then generated entries only if still short.
// The result is sorted newest-first.
func (s *Store) AnyCached(ctx context.Context, limit int) ([]models.Saying, error) {
	if limit <= 0 {
		return nil, nil
	}

	seen := make(map[models.CacheKey]bool)
	var out []models.Saying

	cached, err := s.b.cachedAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, saying := range cached {
		if len(out) >= limit {
			break
		}
		if seen[saying.Key()] {
			continue
		}
		seen[saying.Key()] = true
		out = append(out, saying)
	}

	var all map[string][]models.Saying
	if len(out) < limit {
		all, err = s.b.allHistories(ctx)
		if err != nil {
			return nil, err
		}
	collect:
		for _, h := range all {
			for _, saying := range h {
				if len(out) >= limit {
					break collect
				}
				if saying.Source == models.SourceGenerated || seen[saying.Key()] {
					continue
				}
				seen[saying.Key()] = true
				out = append(out, saying)
			}
		}
	}

	if len(out) < limit && all != nil {
	fill:
		for _, h := range all {
			for _, saying := range h {
				if len(out) >= limit {
					break fill
				}
				if saying.Source != models.SourceGenerated || seen[saying.Key()] {
					continue
				}
				seen[saying.Key()] = true
				out = append(out, saying)
			}
		}
	}

	sortNewestFirst(out)
	return out, nil
}

// encodeKey serializes a cache key for use as a backend map/row key.
func encodeKey(k models.CacheKey) string {
	b, _ := json.Marshal(k)
	return string(b)
}

func sortNewestFirst(h []models.Saying) {
	sort.SliceStable(h, func(i, j int) bool {
		return h[i].CreatedAt.After(h[j].CreatedAt)
	})
}
