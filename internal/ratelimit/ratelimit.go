// Package ratelimit provides the per-client limiter used by event ingestion.
package ratelimit

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

const (
	// DefaultLimit is the number of requests allowed per window.
	DefaultLimit = 10
	// DefaultWindow is the fixed window length.
	DefaultWindow = time.Minute
)

// Limiter decides whether a client may proceed. Implementations must be
// safe for concurrent use. FixedWindow is process-local; a shared backend
// can be substituted without touching callers.
type Limiter interface {
	Allow(clientID string) bool
}

type counter struct {
	count       int
	windowStart time.Time
}

// FixedWindow counts requests per client in fixed windows. The count is
// incremented before it is compared, so exactly limit requests pass in a
// window and the (limit+1)-th is the first denied.
type FixedWindow struct {
	limit  int
	window time.Duration
	clock  quartz.Clock

	mu        sync.Mutex
	counters  map[string]*counter
	lastSweep time.Time
}

// NewFixedWindow returns a limiter allowing limit requests per window. A
// nil clock uses the wall clock.
func NewFixedWindow(limit int, window time.Duration, clock quartz.Clock) *FixedWindow {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &FixedWindow{
		limit:     limit,
		window:    window,
		clock:     clock,
		counters:  make(map[string]*counter),
		lastSweep: clock.Now(),
	}
}

// Allow records a request for clientID and reports whether it is within
// the limit.
func (l *FixedWindow) Allow(clientID string) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	l.sweep(now)

	c, ok := l.counters[clientID]
	if !ok || now.Sub(c.windowStart) > l.window {
		l.counters[clientID] = &counter{count: 1, windowStart: now}
		return true
	}

	c.count++
	return c.count <= l.limit
}

// Count returns the current count for clientID, or 0 if none is tracked.
func (l *FixedWindow) Count(clientID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.counters[clientID]; ok {
		return c.count
	}
	return 0
}

// sweep drops counters whose window has elapsed, at most once per window.
// Caller holds l.mu.
func (l *FixedWindow) sweep(now time.Time) {
	if now.Sub(l.lastSweep) <= l.window {
		return
	}
	for id, c := range l.counters {
		if now.Sub(c.windowStart) > l.window {
			delete(l.counters, id)
		}
	}
	l.lastSweep = now
}
