// Package reauth wraps a blogsync.Doer with refresh-and-retry handling for
// expired access credentials.
//
// A request answered with 401 triggers one refresh round trip. On success the
// original request is replayed exactly once and its outcome returned as-is.
// On failure the session is ended: every registered session-end callback runs
// (store reset, cookie jar reset, validator purge) and the caller receives an
// error matching blogsync.ErrSessionExpired.
package reauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	blogsync "github.com/eugener/blogsync/internal"
)

var _ blogsync.Doer = (*Reauthenticator)(nil)

// DefaultRefreshPath is the refresh endpoint relative to the API base URL.
const DefaultRefreshPath = "/auth/refresh"

// errRefreshStorm is reported when refreshes exceed the configured rate.
var errRefreshStorm = errors.New("too many session refreshes")

// Refresh outcomes reported to the Observer.
const (
	OutcomeOK     = "ok"
	OutcomeFailed = "failed"
	OutcomeStorm  = "storm"
)

// Observer receives refresh and session-end events.
type Observer interface {
	RefreshDone(outcome string)
	SessionEnded()
}

// Options configures a Reauthenticator.
type Options struct {
	RefreshPath string // defaults to DefaultRefreshPath

	// More than MaxRefreshes refreshes within RefreshWindow ends the session
	// without another refresh. A zero window or count disables the guard.
	MaxRefreshes  int
	RefreshWindow time.Duration

	Observer Observer
	Now      func() time.Time
}

// Reauthenticator is a blogsync.Doer that recovers from expired access tokens.
type Reauthenticator struct {
	next        blogsync.Doer
	refreshPath string
	maxRefresh  int
	window      time.Duration
	obs         Observer
	now         func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	refreshes []time.Time // start times inside the current window
	onEnd     []func()
}

// New wraps next.
func New(next blogsync.Doer, opts Options) *Reauthenticator {
	r := &Reauthenticator{
		next:        next,
		refreshPath: opts.RefreshPath,
		maxRefresh:  opts.MaxRefreshes,
		window:      opts.RefreshWindow,
		obs:         opts.Observer,
		now:         opts.Now,
	}
	if r.refreshPath == "" {
		r.refreshPath = DefaultRefreshPath
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// OnSessionEnd registers fn to run whenever the session ends, either from a
// failed refresh or an explicit EndSession.
func (r *Reauthenticator) OnSessionEnd(fn func()) {
	r.mu.Lock()
	r.onEnd = append(r.onEnd, fn)
	r.mu.Unlock()
}

// Do sends req through the wrapped Doer, refreshing and replaying once on 401.
func (r *Reauthenticator) Do(ctx context.Context, req blogsync.Request) (json.RawMessage, error) {
	data, err := r.next.Do(ctx, req)
	if err == nil || !r.refreshable(req, err) {
		return data, err
	}

	if rerr := r.refresh(ctx); rerr != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, rerr)
	}
	return r.next.Do(ctx, req)
}

func (r *Reauthenticator) refreshable(req blogsync.Request, err error) bool {
	if req.SkipReauth || req.Path == r.refreshPath {
		return false
	}
	return blogsync.Classify(err) == blogsync.KindAuthExpired
}

// refresh performs one shared refresh round trip. Concurrent callers wait
// for the same result.
func (r *Reauthenticator) refresh(ctx context.Context) error {
	// The refresh outlives any single caller's cancellation since other
	// callers may be waiting on it; the transport still bounds it.
	shared := context.WithoutCancel(ctx)
	_, err, _ := r.group.Do("refresh", func() (any, error) {
		if r.storming() {
			r.observe(OutcomeStorm)
			r.endSession(shared, errRefreshStorm)
			return nil, fmt.Errorf("%w: %w", blogsync.ErrSessionExpired, errRefreshStorm)
		}

		_, err := r.next.Do(shared, blogsync.Request{
			Method:     http.MethodPost,
			Path:       r.refreshPath,
			SkipReauth: true,
		})
		if err != nil {
			r.observe(OutcomeFailed)
			r.endSession(shared, err)
			return nil, fmt.Errorf("%w: refresh: %w", blogsync.ErrSessionExpired, err)
		}

		r.observe(OutcomeOK)
		slog.LogAttrs(shared, slog.LevelInfo, "session refreshed")
		return nil, nil
	})
	return err
}

// storming records a refresh attempt and reports whether the guard tripped.
func (r *Reauthenticator) storming() bool {
	if r.maxRefresh <= 0 || r.window <= 0 {
		return false
	}
	now := r.now()
	cutoff := now.Add(-r.window)

	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.refreshes[:0]
	for _, t := range r.refreshes {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	r.refreshes = kept
	if len(r.refreshes) >= r.maxRefresh {
		return true
	}
	r.refreshes = append(r.refreshes, now)
	return false
}

// EndSession runs the session-end callbacks. Logout calls it regardless of
// the server's answer.
func (r *Reauthenticator) EndSession(ctx context.Context) {
	r.endSession(ctx, nil)
}

func (r *Reauthenticator) endSession(ctx context.Context, cause error) {
	r.mu.Lock()
	callbacks := make([]func(), len(r.onEnd))
	copy(callbacks, r.onEnd)
	r.refreshes = r.refreshes[:0]
	r.mu.Unlock()

	if cause != nil {
		slog.LogAttrs(ctx, slog.LevelWarn, "session ended",
			slog.String("error", cause.Error()),
		)
	} else {
		slog.LogAttrs(ctx, slog.LevelInfo, "session ended")
	}
	for _, fn := range callbacks {
		fn()
	}
	if r.obs != nil {
		r.obs.SessionEnded()
	}
}

func (r *Reauthenticator) observe(outcome string) {
	if r.obs != nil {
		r.obs.RefreshDone(outcome)
	}
}
