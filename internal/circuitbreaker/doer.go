package circuitbreaker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	blogsync "github.com/eugener/blogsync/internal"
)

// ErrOpen is returned without a request while a group's breaker is open.
// It classifies as a network failure.
var ErrOpen = fmt.Errorf("circuit breaker open: %w", blogsync.ErrNetwork)

// Observer receives breaker state transitions.
type Observer interface {
	BreakerStateChanged(group string, state string)
}

// Doer is a blogsync.Doer that keeps one breaker per resource group, the
// first segment of the request path ("posts", "users", "auth").
type Doer struct {
	next blogsync.Doer
	cfg  Config
	obs  Observer
	now  func() time.Time

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// Wrap returns next guarded by breakers built from cfg. obs may be nil.
func Wrap(next blogsync.Doer, cfg Config, obs Observer) *Doer {
	return &Doer{
		next:     next,
		cfg:      cfg,
		obs:      obs,
		now:      time.Now,
		breakers: make(map[string]*Breaker),
	}
}

// Do implements blogsync.Doer.
func (d *Doer) Do(ctx context.Context, req blogsync.Request) (json.RawMessage, error) {
	group := Group(req.Path)
	b := d.breaker(group)
	if !b.Allow() {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, ErrOpen)
	}

	data, err := d.next.Do(ctx, req)
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		b.Release()
		return data, err
	}

	before := b.State()
	if after := b.Record(Weight(err)); after != before {
		slog.LogAttrs(ctx, slog.LevelWarn, "circuit breaker state changed",
			slog.String("group", group),
			slog.String("from", before.String()),
			slog.String("to", after.String()),
		)
		if d.obs != nil {
			d.obs.BreakerStateChanged(group, after.String())
		}
	}
	return data, err
}

// State returns the state of group's breaker; groups never used are closed.
func (d *Doer) State(group string) State {
	d.mu.Lock()
	b := d.breakers[group]
	d.mu.Unlock()
	if b == nil {
		return StateClosed
	}
	return b.State()
}

func (d *Doer) breaker(group string) *Breaker {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.breakers[group]
	if !ok {
		b = NewBreaker(d.cfg, d.now)
		d.breakers[group] = b
	}
	return b
}

// Group returns the resource group of an API path.
func Group(path string) string {
	path = strings.TrimPrefix(path, "/")
	group, _, _ := strings.Cut(path, "/")
	return group
}
