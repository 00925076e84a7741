package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter counts failed attempts per key over a sliding window. Check is
// advisory and never mutates state: only RecordFailure does, so a caller
// probing Check cannot reset its own window. Clear is mandatory on
// successful authentication, otherwise stale counts bleed into unrelated
// future attempts.
type Limiter interface {
	Check(ctx context.Context, key string) (Decision, error)
	RecordFailure(ctx context.Context, key string) error
	Clear(ctx context.Context, key string) error
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is the in-process Limiter. It is injected, not a package
// singleton, so tests can reset state and deployments can swap in the
// shared Redis backend. Abandoned entries are not proactively evicted: the
// keyspace is bounded by active users and attackers, not unbounded input.
//
// The map is process-local. In a horizontally scaled deployment attackers
// can spread attempts across instances; that is a known limitation, not
// something this type papers over.
type MemoryLimiter struct {
	mu          sync.Mutex
	windows     map[string]window
	maxAttempts int
	windowLen   time.Duration
	now         func() time.Time
}

// NewMemoryLimiter creates an in-process limiter.
func NewMemoryLimiter(maxAttempts int, windowLen time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		windows:     make(map[string]window),
		maxAttempts: maxAttempts,
		windowLen:   windowLen,
		now:         time.Now,
	}
}

// Check reports whether another attempt is allowed for key. An expired
// window is read as fresh without being rewritten.
func (l *MemoryLimiter) Check(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[key]
	if !ok || l.now().After(w.resetAt) {
		return Decision{Allowed: true, Remaining: l.maxAttempts}, nil
	}
	if w.count >= l.maxAttempts {
		return Decision{Allowed: false, RetryAfter: w.resetAt.Sub(l.now())}, nil
	}
	return Decision{Allowed: true, Remaining: l.maxAttempts - w.count}, nil
}

// RecordFailure counts one failed attempt, starting a fresh window when the
// previous one has expired.
func (l *MemoryLimiter) RecordFailure(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || now.After(w.resetAt) {
		l.windows[key] = window{count: 1, resetAt: now.Add(l.windowLen)}
		return nil
	}
	w.count++
	l.windows[key] = w
	return nil
}

// Clear drops the window for key.
func (l *MemoryLimiter) Clear(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, key)
	return nil
}

// SetClock overrides the time source, for tests.
func (l *MemoryLimiter) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}
