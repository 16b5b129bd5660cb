package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	blogsync "github.com/eugener/blogsync/internal"
	"github.com/eugener/blogsync/internal/testutil"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestLimiter_Allow(t *testing.T) {
	t.Parallel()
	l := NewLimiter(3, (&clock{now: time.Unix(0, 0)}).Now)

	for i := range 3 {
		r := l.Allow()
		if !r.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if r.Remaining != int64(2-i) {
			t.Errorf("request %d: remaining = %d, want %d", i+1, r.Remaining, 2-i)
		}
	}

	r := l.Allow()
	if r.Allowed {
		t.Error("4th request should be denied")
	}
	if r.RetryAfter < 19*time.Second || r.RetryAfter > 21*time.Second {
		t.Errorf("RetryAfter = %v, want ~20s", r.RetryAfter)
	}
}

func TestLimiter_RefillAfterTime(t *testing.T) {
	t.Parallel()
	clk := &clock{now: time.Unix(0, 0)}
	l := NewLimiter(1, clk.Now)

	if !l.Allow().Allowed {
		t.Fatal("first request should be allowed")
	}
	if l.Allow().Allowed {
		t.Fatal("second request should be denied")
	}

	clk.Advance(61 * time.Second)
	if !l.Allow().Allowed {
		t.Error("request should be allowed after refill")
	}
}

func TestLimiter_Unlimited(t *testing.T) {
	t.Parallel()
	l := NewLimiter(0, nil)

	for range 1000 {
		if !l.Allow().Allowed {
			t.Fatal("unlimited limiter should always allow")
		}
	}
}

func TestLimiter_WaitHonorsContext(t *testing.T) {
	t.Parallel()
	l := NewLimiter(1, nil)
	if err := l.Wait(t.Context()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}

func TestLimiter_WaitForRefill(t *testing.T) {
	t.Parallel()
	// 1200/min refills one token every 50ms.
	l := NewLimiter(1200, nil)
	for range 1200 {
		l.Allow()
	}

	start := time.Now()
	if err := l.Wait(t.Context()); err != nil {
		t.Fatal(err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("Wait returned after %v, want it to block for a refill", elapsed)
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	t.Parallel()
	l := NewLimiter(10_000, nil)

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			for range 100 {
				l.Allow()
			}
		})
	}
	wg.Wait()
}

func TestDoer_Throttles(t *testing.T) {
	t.Parallel()
	next := &testutil.FakeDoer{}
	d := Wrap(next, NewLimiter(2, nil))

	req := blogsync.Request{Method: "GET", Path: "/posts"}
	for range 2 {
		if _, err := d.Do(t.Context(), req); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	if _, err := d.Do(ctx, req); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if n := next.CallCount("/posts"); n != 2 {
		t.Errorf("forwarded %d requests, want 2", n)
	}
}

func TestDoer_PassesResponseThrough(t *testing.T) {
	t.Parallel()
	next := &testutil.FakeDoer{DoFn: func(context.Context, blogsync.Request) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	}}
	got, err := Wrap(next, NewLimiter(0, nil)).Do(t.Context(), blogsync.Request{Path: "/auth/me"})
	if err != nil || string(got) != `{"ok":true}` {
		t.Errorf("Do = %s, %v", got, err)
	}
}

func TestBucket_RefillNegativeElapsed(t *testing.T) {
	t.Parallel()
	now := time.Now()
	b := newBucket(60, now)
	b.tokens = 30

	b.refill(now.Add(-time.Second))
	if b.tokens != 30 {
		t.Errorf("tokens = %f, want 30 (no change for negative elapsed)", b.tokens)
	}
}

func TestBucket_RetryAfterAvailable(t *testing.T) {
	t.Parallel()
	b := newBucket(60, time.Now())
	if ra := b.retryAfter(1); ra != 0 {
		t.Errorf("retryAfter = %v, want 0 when tokens available", ra)
	}
}
