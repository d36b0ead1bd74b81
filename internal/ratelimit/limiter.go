package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter tracks failed login attempts per email and decides when an account
// must cool down. The window opens at the first failed attempt and closes
// either after the configured duration or on a successful login.
type Limiter interface {
	// Allowed reports whether another login attempt may proceed.
	Allowed(ctx context.Context, email string) (bool, error)
	// RecordFailure registers a failed attempt.
	RecordFailure(ctx context.Context, email string) error
	// Reset clears the window after a successful login.
	Reset(ctx context.Context, email string) error
}

type attemptWindow struct {
	count   int
	firstAt time.Time
}

type memoryLimiter struct {
	mu          sync.Mutex
	windows     map[string]attemptWindow
	maxAttempts int
	window      time.Duration
	now         func() time.Time
}

// NewMemoryLimiter builds a process-local limiter for development and tests.
func NewMemoryLimiter(maxAttempts int, window time.Duration) Limiter {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &memoryLimiter{
		windows:     make(map[string]attemptWindow),
		maxAttempts: maxAttempts,
		window:      window,
		now:         time.Now,
	}
}

func (l *memoryLimiter) Allowed(_ context.Context, email string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[email]
	if !ok {
		return true, nil
	}
	if l.now().Sub(w.firstAt) >= l.window {
		delete(l.windows, email)
		return true, nil
	}
	return w.count < l.maxAttempts, nil
}

func (l *memoryLimiter) RecordFailure(_ context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.windows[email]
	if !ok || l.now().Sub(w.firstAt) >= l.window {
		l.windows[email] = attemptWindow{count: 1, firstAt: l.now()}
		return nil
	}
	w.count++
	l.windows[email] = w
	return nil
}

func (l *memoryLimiter) Reset(_ context.Context, email string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.windows, email)
	return nil
}
