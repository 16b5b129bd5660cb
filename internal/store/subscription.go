package store

import "context"

// Subscription is one caller's interest in a key. Entries with at least one
// live subscription are never evicted, and only subscribed entries are
// refetched on invalidation.
type Subscription struct {
	store   *Store
	key     Key
	entry   *entry
	changed chan struct{}
	closed  bool // guarded by store.mu
}

// Key returns the subscribed key.
func (sub *Subscription) Key() Key { return sub.key }

// Changed is signaled whenever the entry's status or data changes. Signals
// coalesce; read the current state with Entry.
func (sub *Subscription) Changed() <-chan struct{} { return sub.changed }

// Entry returns the current state of the subscribed entry.
func (sub *Subscription) Entry() (Entry, bool) {
	s := sub.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[sub.key] != sub.entry {
		return Entry{}, false
	}
	return sub.entry.snapshot(), true
}

// Wait blocks until the entry is not loading and returns it. A rejected
// entry is returned together with its error.
func (sub *Subscription) Wait(ctx context.Context) (Entry, error) {
	s := sub.store
	for {
		s.mu.Lock()
		if s.entries[sub.key] != sub.entry {
			// A fetch that failed after a reset still reports its error.
			err := sub.entry.orphanErr
			s.mu.Unlock()
			if err != nil {
				return Entry{Key: sub.key, Status: StatusRejected, Err: err}, err
			}
			return Entry{}, ErrEvicted
		}
		e := sub.entry
		if e.status != StatusLoading || e.flight == nil {
			snap := e.snapshot()
			s.mu.Unlock()
			if snap.Status == StatusRejected {
				return snap, snap.Err
			}
			return snap, nil
		}
		done := e.flight.done
		s.mu.Unlock()

		select {
		case <-done:
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

// Unsubscribe drops the subscription. It does not cancel an in-flight fetch;
// a result arriving with no subscribers left is discarded. Safe to call more
// than once.
func (sub *Subscription) Unsubscribe() {
	s := sub.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub.closed {
		return
	}
	sub.closed = true
	e := sub.entry
	delete(e.subs, sub)
	if len(e.subs) == 0 {
		e.idleSince = s.now()
	}
}
