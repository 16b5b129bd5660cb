package worker

import (
	"context"
	"log/slog"
	"time"
)

// DefaultSweepInterval is used when NewSweeper gets a non-positive interval.
const DefaultSweepInterval = 10 * time.Second

// Evictor drops cache entries that stayed unsubscribed past their keep-alive.
// Implemented by store.Store.
type Evictor interface {
	EvictIdle(now time.Time) int
}

// Sweeper periodically evicts idle cache entries.
type Sweeper struct {
	cache    Evictor
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a Sweeper.
func NewSweeper(cache Evictor, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{cache: cache, interval: interval, now: time.Now}
}

// Name returns the worker identifier.
func (w *Sweeper) Name() string { return "cache_sweeper" }

// Run evicts idle entries every interval until ctx is cancelled.
func (w *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := w.cache.EvictIdle(w.now()); n > 0 {
				slog.LogAttrs(ctx, slog.LevelDebug, "evicted idle entries",
					slog.Int("count", n),
				)
			}
		case <-ctx.Done():
			return nil
		}
	}
}
