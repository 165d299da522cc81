// Package ratelimit implements fixed-window request counting per client on
// top of a pluggable Store, plus a token bucket throttle for login attempts.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Policy is the window configuration attached to a route.
type Policy struct {
	Window time.Duration
	Max    int
}

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter counts requests per client in fixed windows.
// Check is serialised per Limiter; two instances sharing a Store only get
// approximate enforcement.
type Limiter struct {
	store Store
	mu    sync.Mutex
	now   func() time.Time
}

func New(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// WithClock overrides the time source.
func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	l.now = now
	return l
}

// Check records a request from clientID. The first request, or the first one
// after the window elapsed, opens a new window with count 1. Every later
// request increments the count and is allowed while count <= max.
func (l *Limiter) Check(ctx context.Context, clientID string, window time.Duration, maxRequests int) (Result, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	entry, ok, err := l.store.Get(ctx, clientID)
	if err != nil {
		return Result{}, fmt.Errorf("rate limit store get: %w", err)
	}

	if !ok || now.After(entry.ResetAt) {
		entry = Entry{Count: 1, ResetAt: now.Add(window)}
		if err := l.store.Set(ctx, clientID, entry, window); err != nil {
			return Result{}, fmt.Errorf("rate limit store set: %w", err)
		}
		return Result{
			Allowed:   maxRequests >= 1,
			Remaining: max(0, maxRequests-1),
			ResetIn:   window,
		}, nil
	}

	entry.Count++
	resetIn := entry.ResetAt.Sub(now)
	if err := l.store.Set(ctx, clientID, entry, resetIn); err != nil {
		return Result{}, fmt.Errorf("rate limit store set: %w", err)
	}

	return Result{
		Allowed:   entry.Count <= maxRequests,
		Remaining: max(0, maxRequests-entry.Count),
		ResetIn:   resetIn,
	}, nil
}

// CheckPolicy is Check with the window and limit taken from p.
func (l *Limiter) CheckPolicy(ctx context.Context, clientID string, p Policy) (Result, error) {
	return l.Check(ctx, clientID, p.Window, p.Max)
}
