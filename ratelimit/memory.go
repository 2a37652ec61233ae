package ratelimit

import (
	"context"
	"sync"
	"time"
)

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is an in-process fixed-window limiter.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window

	limit  int
	window time.Duration
	now    func() time.Time
}

// NewMemoryLimiter creates a limiter allowing limit submissions per window
// per identity.
func NewMemoryLimiter(limit int, windowSize time.Duration) *MemoryLimiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if windowSize <= 0 {
		windowSize = DefaultWindow
	}
	return &MemoryLimiter{
		windows: make(map[string]*window),
		limit:   limit,
		window:  windowSize,
		now:     time.Now,
	}
}

// CheckAndIncrement consumes one unit of the identity's budget.
func (l *MemoryLimiter) CheckAndIncrement(_ context.Context, identity string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[identity]
	if !ok || now.After(w.resetAt) {
		l.windows[identity] = &window{count: 1, resetAt: now.Add(l.window)}
		return true, nil
	}
	if w.count >= l.limit {
		return false, nil
	}
	w.count++
	return true, nil
}

// Sweep drops expired windows. Call periodically from a background goroutine
// to bound memory on long-running processes.
func (l *MemoryLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for id, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, id)
		}
	}
}

var _ Limiter = (*MemoryLimiter)(nil)
