package blog

import (
	"context"
	"errors"
	"sync"

	blogsync "github.com/eugener/blogsync/internal"
	"github.com/eugener/blogsync/internal/api"
	"github.com/eugener/blogsync/internal/paginate"
	"github.com/eugener/blogsync/internal/store"
)

// ErrFeedClosed is returned by a LoadNext that was overtaken by Close or
// Refresh.
var ErrFeedClosed = errors.New("blog: feed closed during load")

// Feed is an infinitely scrolled list. It keeps one store subscription per
// loaded page, so cached pages follow invalidation refetches and optimistic
// patches. Items merges the pages in order without duplicates.
//
// The lock is never held across a fetch. Readers see the loaded pages while
// the next one is in flight, and concurrent LoadNext calls share one load.
type Feed[T any] struct {
	client   *Client
	query    api.QueryDef[ListArgs]
	parentID string

	mu       sync.Mutex
	subs     []*store.Subscription // subs[i] holds page i+1
	acc      *paginate.Accumulator[T]
	inflight *pageLoad
	gen      uint64 // bumped by Close and Refresh; stale loads are dropped
}

// pageLoad is one LoadNext in progress. done is closed once more and err
// are set.
type pageLoad struct {
	done chan struct{}
	more bool
	err  error
}

func newFeed[T any](c *Client, q api.QueryDef[ListArgs], parentID string, id func(T) string) *Feed[T] {
	return &Feed[T]{
		client:   c,
		query:    q,
		parentID: parentID,
		acc:      paginate.New(id),
	}
}

// LoadNext fetches the page after the last loaded one. It reports false
// without a request when the server said there are no more pages. A call
// made while another load is running waits for that load instead.
func (f *Feed[T]) LoadNext(ctx context.Context) (bool, error) {
	f.mu.Lock()
	if l := f.inflight; l != nil {
		f.mu.Unlock()
		select {
		case <-l.done:
			return l.more, l.err
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	acc := f.rebuildLocked()
	// Pages dropped by a store reset are loaded again.
	if n := acc.Page(); n < len(f.subs) {
		for _, sub := range f.subs[n:] {
			sub.Unsubscribe()
		}
		f.subs = f.subs[:n]
	}
	if len(f.subs) > 0 && !acc.HasMore() {
		f.mu.Unlock()
		return false, nil
	}

	sub, err := api.Subscribe(f.client.api, f.query, f.client.list(f.parentID, len(f.subs)+1))
	if err != nil {
		f.mu.Unlock()
		return false, err
	}
	l := &pageLoad{done: make(chan struct{})}
	f.inflight = l
	gen := f.gen
	f.mu.Unlock()

	_, err = sub.Wait(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	defer close(l.done)
	if f.inflight == l {
		f.inflight = nil
	}
	switch {
	case err != nil:
		sub.Unsubscribe()
		l.err = err
	case gen != f.gen:
		sub.Unsubscribe()
		l.err = ErrFeedClosed
	default:
		f.subs = append(f.subs, sub)
		l.more = true
	}
	return l.more, l.err
}

// Refresh drops every page but the first and refetches it.
func (f *Feed[T]) Refresh(ctx context.Context) error {
	f.mu.Lock()
	f.gen++
	f.inflight = nil

	for i := len(f.subs) - 1; i >= 1; i-- {
		f.subs[i].Unsubscribe()
	}
	if len(f.subs) > 1 {
		f.subs = f.subs[:1]
	}
	if len(f.subs) == 1 {
		first := f.subs[0]
		if _, ok := first.Entry(); ok {
			f.client.api.Store().Refetch(first.Key())
			f.mu.Unlock()
			_, err := first.Wait(ctx)
			return err
		}
		first.Unsubscribe()
		f.subs = nil
	}
	f.mu.Unlock()

	_, err := f.LoadNext(ctx)
	return err
}

// Items returns the merged items of every loaded page.
func (f *Feed[T]) Items() []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.rebuildLocked().Items()
}

// HasMore reports whether another page can be loaded.
func (f *Feed[T]) HasMore() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs) == 0 || f.rebuildLocked().HasMore()
}

// Pages returns the number of loaded pages.
func (f *Feed[T]) Pages() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

// Close releases every page subscription and abandons a running LoadNext.
// The Feed can be reused afterwards and starts again from page one.
func (f *Feed[T]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gen++
	f.inflight = nil
	for _, sub := range f.subs {
		sub.Unsubscribe()
	}
	f.subs = nil
	f.acc.Reset()
}

// rebuildLocked replays the current data of each page into the accumulator.
// Pages without data (evicted or reset) stop the replay.
func (f *Feed[T]) rebuildLocked() *paginate.Accumulator[T] {
	f.acc.Reset()
	for i, sub := range f.subs {
		e, ok := sub.Entry()
		if !ok || e.Data == nil {
			break
		}
		page, err := api.Decode[blogsync.Page[T]](e.Data)
		if err != nil {
			break
		}
		f.acc.Apply(i+1, page.Items, page.HasMore)
	}
	return f.acc
}
