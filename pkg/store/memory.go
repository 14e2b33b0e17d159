package store

import (
	"context"
	"sync"

	"github.com/sibyl-ai/sibyl/pkg/models"
)

// memoryBackend keeps everything in process memory. Operations cannot fail.
type memoryBackend struct {
	mu        sync.RWMutex
	histories map[string][]models.Saying
	cache     map[string]models.Saying
}

// NewMemory creates a Store backed by in-process maps.
func NewMemory() *Store {
	return &Store{
		kind: "memory",
		b: &memoryBackend{
			histories: make(map[string][]models.Saying),
			cache:     make(map[string]models.Saying),
		},
	}
}

func (m *memoryBackend) history(_ context.Context, userID string) ([]models.Saying, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h := m.histories[userID]
	out := make([]models.Saying, len(h))
	copy(out, h)
	return out, nil
}

func (m *memoryBackend) setHistory(_ context.Context, userID string, h []models.Saying) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.histories[userID] = h
	return nil
}

func (m *memoryBackend) cached(_ context.Context, key string) (models.Saying, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.cache[key]
	return s, ok, nil
}

func (m *memoryBackend) setCached(_ context.Context, key string, s models.Saying) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[key] = s
	return nil
}

func (m *memoryBackend) allHistories(_ context.Context) (map[string][]models.Saying, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]models.Saying, len(m.histories))
	for u, h := range m.histories {
		c := make([]models.Saying, len(h))
		copy(c, h)
		out[u] = c
	}
	return out, nil
}

func (m *memoryBackend) cachedAll(_ context.Context) ([]models.Saying, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.Saying, 0, len(m.cache))
	for _, s := range m.cache {
		out = append(out, s)
	}
	return out, nil
}

func (m *memoryBackend) close() error {
	return nil
}
