// Package store is the normalized query cache: keyed entries with
// subscriptions, de-duplicated fetches, tag-based invalidation, optimistic
// patches and idle eviction.
//
// All state is guarded by one mutex. Fetches run on their own goroutines and
// re-acquire the lock to resolve, so network I/O never happens under it.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	blogsync "github.com/eugener/blogsync/internal"
)

// ErrEvicted is returned by Subscription.Wait when the entry was evicted or
// the store was reset while waiting.
var ErrEvicted = errors.New("store: entry evicted")

const defaultKeepAlive = 60 * time.Second

// Options configures a Store.
type Options struct {
	KeepAlive    time.Duration // idle time before an unsubscribed entry is evictable; defaults to 60s
	FetchTimeout time.Duration // bound on each fetch; 0 = none
	Observer     Observer
	Now          func() time.Time

	// BaseContext is the parent of every fetch context. Defaults to context.Background.
	BaseContext context.Context
}

// Store holds cached query results.
type Store struct {
	keepAlive    time.Duration
	fetchTimeout time.Duration
	obs          Observer
	now          func() time.Time
	baseCtx      context.Context

	mu      sync.Mutex
	entries map[Key]*entry
	index   map[Tag]map[Key]struct{}
	epoch   uint64 // bumped by Reset

	fetches sync.WaitGroup
}

// New creates an empty store.
func New(opts Options) *Store {
	s := &Store{
		keepAlive:    opts.KeepAlive,
		fetchTimeout: opts.FetchTimeout,
		obs:          opts.Observer,
		now:          opts.Now,
		baseCtx:      opts.BaseContext,
		entries:      make(map[Key]*entry),
		index:        make(map[Tag]map[Key]struct{}),
	}
	if s.keepAlive <= 0 {
		s.keepAlive = defaultKeepAlive
	}
	if s.obs == nil {
		s.obs = nopObserver{}
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.baseCtx == nil {
		s.baseCtx = context.Background()
	}
	return s
}

// Get returns a copy of the entry for key.
func (s *Store) Get(key Key) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return Entry{}, false
	}
	return e.snapshot(), true
}

// Upsert writes data as the fulfilled result for key and indexes tags. An
// entry with a fetch in flight stays loading and the fetch result settles it.
func (s *Store) Upsert(key Key, data json.RawMessage, tags []Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.entryLocked(key)
	e.data = data
	e.confirmed = data
	if e.status == StatusLoading {
		e.prevStatus = StatusFulfilled
	} else {
		e.status = StatusFulfilled
	}
	e.err = nil
	e.stale = false
	e.fulfilledAt = s.now()
	e.fetchGen++
	s.reindexLocked(e, tags)
	s.notifyLocked(e)
}

// Subscribe registers interest in key. A fetch is started when the entry has
// no fresh data and none is in flight; a fetch already in flight is shared.
func (s *Store) Subscribe(key Key, def Definition) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entryLocked(key)
	e.def = def
	sub := &Subscription{
		store:   s,
		key:     key,
		entry:   e,
		changed: make(chan struct{}, 1),
	}
	e.subs[sub] = struct{}{}

	switch {
	case e.status == StatusLoading:
		s.obs.Coalesced()
	case e.status == StatusFulfilled && !e.stale:
		s.obs.CacheHit()
	default:
		s.obs.CacheMiss()
		s.startFetchLocked(e)
	}
	return sub
}

// Refetch starts a fetch for a subscribed entry that is not already loading.
// It reports whether a fetch was started.
func (s *Store) Refetch(key Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || len(e.subs) == 0 || !e.refetchable() {
		return false
	}
	e.stale = true
	s.startFetchLocked(e)
	return true
}

// Keys returns the keys of every entry carrying tag, sorted.
func (s *Store) Keys(tag Tag) []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keysLocked(tag)
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// EvictIdle drops unsubscribed entries idle for at least the keep-alive
// window and returns how many were dropped.
func (s *Store) EvictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for key, e := range s.entries {
		if len(e.subs) > 0 || e.status == StatusLoading {
			continue
		}
		if now.Sub(e.idleSince) < s.keepAlive {
			continue
		}
		s.removeLocked(key, e)
		n++
	}
	if n > 0 {
		s.obs.Evicted(n)
		slog.LogAttrs(s.baseCtx, slog.LevelDebug, "evicted idle entries",
			slog.Int("count", n),
			slog.Int("remaining", len(s.entries)),
		)
	}
	return n
}

// Reset drops every entry. Fetches started before the reset can never write
// into entries created after it.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(s.entries)
	old := s.entries
	s.epoch++
	s.entries = make(map[Key]*entry)
	s.index = make(map[Tag]map[Key]struct{})
	for _, e := range old {
		s.notifyLocked(e)
	}
	slog.LogAttrs(s.baseCtx, slog.LevelDebug, "store reset", slog.Int("entries", n))
}

// Wait blocks until every background fetch has resolved.
func (s *Store) Wait() {
	s.fetches.Wait()
}

// --- locked helpers ---

func (s *Store) entryLocked(key Key) *entry {
	e, ok := s.entries[key]
	if !ok {
		e = &entry{
			key:       key,
			subs:      make(map[*Subscription]struct{}),
			idleSince: s.now(),
		}
		s.entries[key] = e
	}
	return e
}

func (s *Store) removeLocked(key Key, e *entry) {
	s.reindexLocked(e, nil)
	delete(s.entries, key)
	s.notifyLocked(e)
}

func (s *Store) keysLocked(tag Tag) []Key {
	set := s.index[tag]
	keys := make([]Key, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeys)
	return keys
}

func compareKeys(a, b Key) int {
	if a.Endpoint != b.Endpoint {
		if a.Endpoint < b.Endpoint {
			return -1
		}
		return 1
	}
	switch {
	case a.Args < b.Args:
		return -1
	case a.Args > b.Args:
		return 1
	}
	return 0
}

func (s *Store) reindexLocked(e *entry, tags []Tag) {
	for _, t := range e.tags {
		if set := s.index[t]; set != nil {
			delete(set, e.key)
			if len(set) == 0 {
				delete(s.index, t)
			}
		}
	}
	e.tags = slices.Clone(tags)
	for _, t := range e.tags {
		set := s.index[t]
		if set == nil {
			set = make(map[Key]struct{})
			s.index[t] = set
		}
		set[e.key] = struct{}{}
	}
}

func (s *Store) notifyLocked(e *entry) {
	for sub := range e.subs {
		select {
		case sub.changed <- struct{}{}:
		default:
		}
	}
}

// startFetchLocked flips e to loading and runs its fetch in the background.
func (s *Store) startFetchLocked(e *entry) {
	if !e.refetchable() {
		return
	}
	fl := &flight{done: make(chan struct{})}
	e.prevStatus = e.status
	e.status = StatusLoading
	e.flight = fl
	def := e.def
	epoch := s.epoch

	s.fetches.Add(1)
	go s.runFetch(e, fl, def, epoch)
	s.notifyLocked(e)
}

func (s *Store) runFetch(e *entry, fl *flight, def Definition, epoch uint64) {
	defer s.fetches.Done()

	ctx := s.baseCtx
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}

	start := time.Now()
	data, err := def.Fetch(ctx)
	outcome := "ok"
	if err != nil {
		outcome = blogsync.Classify(err).String()
	}
	s.obs.FetchDone(e.key.Endpoint, outcome, time.Since(start))

	var tags []Tag
	if err == nil && def.Tags != nil {
		tags = def.Tags(data)
	}
	s.resolve(e, fl, epoch, data, tags, err)
}

// resolve applies a fetch result if the entry is still current and watched.
func (s *Store) resolve(e *entry, fl *flight, epoch uint64, data json.RawMessage, tags []Tag, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer close(fl.done)

	if e.flight == fl {
		e.flight = nil
	}
	if epoch != s.epoch || s.entries[e.key] != e {
		e.orphanErr = err
		s.obs.Discarded()
		return
	}
	if len(e.subs) == 0 {
		e.status = e.prevStatus
		e.stale = true
		s.obs.Discarded()
		return
	}

	if err != nil {
		e.status = StatusRejected
		e.err = err
		s.notifyLocked(e)
		slog.LogAttrs(s.baseCtx, slog.LevelDebug, "fetch rejected",
			slog.String("key", e.key.String()),
			slog.String("error", err.Error()),
		)
		return
	}

	e.data = data
	e.confirmed = data
	e.status = StatusFulfilled
	e.err = nil
	e.stale = false
	e.fulfilledAt = s.now()
	e.fetchGen++
	s.reindexLocked(e, tags)
	s.notifyLocked(e)
}
