// Package ratelimit provides a sliding-window request counter keyed by
// (actor, action). Limits never share counters across actions: posting a
// comment and registering an account draw from separate windows.
//
// The backend is in-process. The Limiter interface exists so a distributed
// window can be swapped in without touching callers.
package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Action classes with independent counters.
const (
	ActionNodeCreate = "node_create"
	ActionRegister   = "register"
	ActionLogin      = "login"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long the caller must wait for a slot when denied.
	RetryAfter time.Duration
	ResetAt    time.Time
}

// Limiter gates an action for an actor. Implementations must be safe for
// concurrent use.
type Limiter interface {
	Allow(actor, action string, limit int, window time.Duration) Decision
}

// SlidingWindow is an in-memory Limiter tracking request timestamps per
// (actor, action) key and counting those inside the trailing window.
type SlidingWindow struct {
	mu      sync.Mutex
	buckets map[string][]time.Time
	now     func() time.Time
}

// NewSlidingWindow creates an empty limiter.
func NewSlidingWindow() *SlidingWindow {
	return &SlidingWindow{
		buckets: map[string][]time.Time{},
		now:     time.Now,
	}
}

// NewSlidingWindowAt creates a limiter with an injected clock, for tests.
func NewSlidingWindowAt(now func() time.Time) *SlidingWindow {
	return &SlidingWindow{
		buckets: map[string][]time.Time{},
		now:     now,
	}
}

func key(actor, action string) string {
	return fmt.Sprintf("%s|%s", action, actor)
}

// Allow records a hit for (actor, action) if fewer than limit hits happened
// within the trailing window, and reports whether the caller may proceed.
// A denied call records nothing, so probing does not extend the lockout.
func (l *SlidingWindow) Allow(actor, action string, limit int, window time.Duration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if limit <= 0 {
		return Decision{Allowed: true}
	}

	k := key(actor, action)
	cutoff := now.Add(-window)
	history := l.buckets[k]
	trimmed := history[:0]
	for _, ts := range history {
		if !ts.Before(cutoff) {
			trimmed = append(trimmed, ts)
		}
	}
	history = trimmed

	d := Decision{
		Allowed: len(history) < limit,
		Limit:   limit,
	}
	if !d.Allowed {
		d.Remaining = 0
		d.ResetAt = history[0].Add(window)
		d.RetryAfter = d.ResetAt.Sub(now)
		l.buckets[k] = history
		return d
	}

	history = append(history, now)
	l.buckets[k] = history
	d.Remaining = limit - len(history)
	d.ResetAt = history[0].Add(window)
	return d
}
