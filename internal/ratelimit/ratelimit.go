// Package ratelimit throttles outgoing API requests with a lazy-refill
// token bucket.
package ratelimit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	blogsync "github.com/eugener/blogsync/internal"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed    bool
	Limit      int64
	Remaining  int64
	RetryAfter time.Duration
}

// bucket is a token bucket with lazy refill (no background goroutine).
type bucket struct {
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastFill time.Time
}

func newBucket(perMinute int64, now time.Time) *bucket {
	return &bucket{
		tokens:   float64(perMinute),
		max:      float64(perMinute),
		rate:     float64(perMinute) / 60.0,
		lastFill: now,
	}
}

// refill adds tokens based on elapsed time since last refill.
func (b *bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.max, b.tokens+elapsed*b.rate)
	b.lastFill = now
}

// tryConsume attempts to consume n tokens.
func (b *bucket) tryConsume(n float64, now time.Time) (remaining int64, allowed bool) {
	b.refill(now)
	if b.tokens >= n {
		b.tokens -= n
		return int64(b.tokens), true
	}
	return 0, false
}

// retryAfter returns the time until n tokens are available.
func (b *bucket) retryAfter(n float64) time.Duration {
	if b.tokens >= n {
		return 0
	}
	return time.Duration((n - b.tokens) / b.rate * float64(time.Second))
}

// Limiter caps requests per minute. The bucket starts full, so up to a
// minute's worth of requests may burst.
type Limiter struct {
	rpm int64
	now func() time.Time

	mu  sync.Mutex
	rpb *bucket // nil if unlimited
}

// NewLimiter creates a limiter allowing rpm requests per minute. rpm <= 0
// means unlimited. now defaults to time.Now.
func NewLimiter(rpm int64, now func() time.Time) *Limiter {
	if now == nil {
		now = time.Now
	}
	l := &Limiter{rpm: rpm, now: now}
	if rpm > 0 {
		l.rpb = newBucket(rpm, now())
	}
	return l
}

// Allow consumes one token if available.
func (l *Limiter) Allow() Result {
	if l.rpb == nil {
		return Result{Allowed: true}
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if remaining, ok := l.rpb.tryConsume(1, l.now()); ok {
		return Result{Allowed: true, Limit: l.rpm, Remaining: remaining}
	}
	return Result{Limit: l.rpm, RetryAfter: l.rpb.retryAfter(1)}
}

// Wait blocks until a token is consumed or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		r := l.Allow()
		if r.Allowed {
			return nil
		}
		timer := time.NewTimer(max(r.RetryAfter, time.Millisecond))
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Doer is a blogsync.Doer that waits for the limiter before each request.
type Doer struct {
	next    blogsync.Doer
	limiter *Limiter
}

// Wrap returns next throttled by l.
func Wrap(next blogsync.Doer, l *Limiter) *Doer {
	return &Doer{next: next, limiter: l}
}

// Do implements blogsync.Doer.
func (d *Doer) Do(ctx context.Context, req blogsync.Request) (json.RawMessage, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return d.next.Do(ctx, req)
}
