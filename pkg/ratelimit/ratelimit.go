// Package ratelimit implements a fixed-window per-user quota tracker.
//
// All requests inside one window share a single counter that resets
// atomically when the window elapses. Bursty use across a window boundary
// is accepted; this is deliberately not a sliding window or token bucket.
package ratelimit

import (
	"sync"
	"time"

	"github.com/sibyl-ai/sibyl/pkg/models"
)

// Limiter tracks per-user rate windows in memory.
type Limiter struct {
	max    uint32
	window time.Duration

	mu      sync.Mutex
	windows map[string]models.RateWindow
}

// New creates a Limiter allowing max requests per window.
func New(max uint32, window time.Duration) *Limiter {
	return &Limiter{
		max:     max,
		window:  window,
		windows: make(map[string]models.RateWindow),
	}
}

// Check consumes one unit of the user's quota. It returns true if the
// request is admitted. A missing or elapsed window is replaced with a fresh
// one that already accounts for this request. When the quota is exhausted
// it returns false without mutating the window.
func (l *Limiter) Check(userID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now().UTC()

	w, ok := l.windows[userID]
	if !ok || now.After(w.ResetAt) {
		l.windows[userID] = models.RateWindow{
			UserID:    userID,
			Remaining: l.max - 1,
			ResetAt:   now.Add(l.window),
		}
		return true
	}

	if w.Remaining > 0 {
		w.Remaining--
		l.windows[userID] = w
		return true
	}

	return false
}

// Reset installs a fresh full-quota window for the user without consuming
// any of it. Used to initialize a user on first contact.
func (l *Limiter) Reset(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.windows[userID] = models.RateWindow{
		UserID:    userID,
		Remaining: l.max,
		ResetAt:   time.Now().UTC().Add(l.window),
	}
}

// Info returns a snapshot of the user's current window. It never creates a
// window as a side effect.
func (l *Limiter) Info(userID string) (models.RateWindow, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[userID]
	return w, ok
}

// Max returns the configured per-window quota.
func (l *Limiter) Max() uint32 {
	return l.max
}
