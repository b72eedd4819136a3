// Package ratelimit provides sliding-window admission control for the ingest
// endpoint. The in-memory Window is process-local and resets on restart;
// RedisWindow shares the same window across instances.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Admitter decides whether one more request may proceed. Implementations
// record the admission when they return true.
type Admitter interface {
	Admit(ctx context.Context) (bool, error)
}

// Window is an in-memory sliding-window counter. It remembers the time of
// every admission in the trailing window and refuses new ones once the
// count reaches the limit.
type Window struct {
	mu         sync.Mutex
	admissions []time.Time
	limit      int
	window     time.Duration
	now        func() time.Time
}

// Option configures a Window.
type Option func(*Window)

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Window) {
		w.now = now
	}
}

// NewWindow creates a limiter admitting at most limit requests per window.
func NewWindow(limit int, window time.Duration, opts ...Option) *Window {
	w := &Window{
		admissions: make([]time.Time, 0, limit),
		limit:      limit,
		window:     window,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Admit prunes admissions older than the window and admits the request if
// fewer than limit remain. It never returns an error.
func (w *Window) Admit(_ context.Context) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	w.prune(now)
	if len(w.admissions) >= w.limit {
		return false, nil
	}
	w.admissions = append(w.admissions, now)
	return true, nil
}

// Count returns the number of admissions inside the current window.
func (w *Window) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.prune(w.now())
	return len(w.admissions)
}

// Reset forgets every recorded admission.
func (w *Window) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.admissions = w.admissions[:0]
}

// prune drops admissions at or before now-window. Admissions are appended in
// clock order, so the expired ones form a prefix.
func (w *Window) prune(now time.Time) {
	cutoff := now.Add(-w.window)
	i := 0
	for i < len(w.admissions) && !w.admissions[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.admissions = append(w.admissions[:0], w.admissions[i:]...)
	}
}
