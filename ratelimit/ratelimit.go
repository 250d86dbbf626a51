// Package ratelimit provides a count-and-window brute-force throttle for
// password and second-factor verification attempts.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Operation names the guarded verification paths. Buckets are keyed by
// (operation, subject) so a lockout on one path doesn't spill into another.
type Operation string

const (
	OpPasswordVerify   Operation = "password_verify"
	OpTwoFactorVerify  Operation = "twofactor_verify"
	OpTwoFactorDisable Operation = "twofactor_disable"
)

const (
	// DefaultMaxAttempts failures within DefaultWindow trigger a lockout.
	DefaultMaxAttempts = 5
	DefaultWindow      = time.Minute
	// DefaultLockout is how long Check keeps returning Limited once the
	// window has been exceeded, regardless of the window contents.
	DefaultLockout = 5 * time.Minute
	// DefaultSweepInterval is how often Run evicts stale buckets. Lazy
	// eviction in Check covers subjects that come back; the sweep covers
	// the ones that never do.
	DefaultSweepInterval = time.Minute
)

// Status is the result of a Check call.
type Status struct {
	Allowed    bool
	RetryAfter time.Duration
}

// LimitedError is returned by callers that surface throttling as an error.
// It is a signal to wait, not a statement about correctness.
type LimitedError struct {
	RetryAfter time.Duration
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("too many attempts, retry after %s", e.RetryAfter.Round(time.Second))
}

type bucket struct {
	attempts    []time.Time
	lockedUntil time.Time
}

// Limiter tracks failed attempts per (operation, subject) in memory.
// A process restart clears all state; that is an accepted property of the
// single-instance deployment model, not a bug.
type Limiter struct {
	mu          sync.Mutex
	buckets     map[string]*bucket
	maxAttempts int
	window      time.Duration
	lockout     time.Duration
	now         func() time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLimits overrides the attempt count, window, and lockout duration.
func WithLimits(maxAttempts int, window, lockout time.Duration) Option {
	return func(l *Limiter) {
		l.maxAttempts = maxAttempts
		l.window = window
		l.lockout = lockout
	}
}

// WithClock substitutes the time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter with the default 5-per-minute window and
// 5-minute lockout.
func New(opts ...Option) *Limiter {
	l := &Limiter{
		buckets:     make(map[string]*bucket),
		maxAttempts: DefaultMaxAttempts,
		window:      DefaultWindow,
		lockout:     DefaultLockout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func bucketKey(op Operation, subject string) string {
	return string(op) + ":" + subject
}

// Check reports whether the subject may attempt the operation. During a
// lockout it always returns Limited with the remaining wait, regardless of
// the window contents. Stale attempts are pruned lazily here.
func (l *Limiter) Check(op Operation, subject string) Status {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := bucketKey(op, subject)
	b, ok := l.buckets[key]
	if !ok {
		return Status{Allowed: true}
	}

	now := l.now()
	if now.Before(b.lockedUntil) {
		return Status{RetryAfter: b.lockedUntil.Sub(now)}
	}

	// The lockout, if any, has expired by this point, so an empty bucket
	// carries no state worth keeping.
	l.prune(b, now)
	if len(b.attempts) == 0 {
		delete(l.buckets, key)
	}
	return Status{Allowed: true}
}

// RecordFailure adds a failed attempt. Exceeding the window starts the
// lockout clock.
func (l *Limiter) RecordFailure(op Operation, subject string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := bucketKey(op, subject)
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}

	now := l.now()
	l.prune(b, now)
	b.attempts = append(b.attempts, now)

	if len(b.attempts) >= l.maxAttempts {
		b.lockedUntil = now.Add(l.lockout)
	}
}

// RecordSuccess clears the subject's bucket after a verified attempt.
func (l *Limiter) RecordSuccess(op Operation, subject string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, bucketKey(op, subject))
}

// Reset drops all limiting state. Used by the administrative lockout-reset
// endpoint.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.buckets = make(map[string]*bucket)
}

// Run calls Sweep every interval until ctx is cancelled. Call from a
// background goroutine; a non-positive interval falls back to
// DefaultSweepInterval.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Sweep removes buckets whose attempts and lockouts have all expired.
// Call periodically from a background goroutine.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, b := range l.buckets {
		l.prune(b, now)
		if len(b.attempts) == 0 && !now.Before(b.lockedUntil) {
			delete(l.buckets, key)
		}
	}
}

// prune drops attempts older than the window. Callers hold l.mu.
func (l *Limiter) prune(b *bucket, now time.Time) {
	cutoff := now.Add(-l.window)
	start := 0
	for start < len(b.attempts) && b.attempts[start].Before(cutoff) {
		start++
	}
	b.attempts = b.attempts[start:]
}
