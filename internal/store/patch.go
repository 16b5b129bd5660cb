package store

import (
	"encoding/json"
	"fmt"
	"slices"
)

// UpdateFunc computes the next value of an entry from its prior value. It
// must not modify prior. Returning nil data leaves the entry unchanged.
type UpdateFunc func(prior json.RawMessage) (json.RawMessage, error)

// Target selects the entries one update applies to: a single key, or every
// entry carrying a tag, optionally limited to some endpoints.
type Target struct {
	key       Key
	tag       Tag
	byTag     bool
	endpoints []string
	update    UpdateFunc
}

// KeyTarget applies fn to the entry at key.
func KeyTarget(key Key, fn UpdateFunc) Target {
	return Target{key: key, update: fn}
}

// TagTarget applies fn to every entry carrying tag. When endpoints are given
// only entries of those endpoints are touched.
func TagTarget(tag Tag, fn UpdateFunc, endpoints ...string) Target {
	return Target{tag: tag, byTag: true, endpoints: endpoints, update: fn}
}

type undoRecord struct {
	entry    *entry
	prior    json.RawMessage
	fetchGen uint64
}

// Patch is the undo list of one applied patch set.
type Patch struct {
	store   *Store
	applied int
	undo    []undoRecord
	done    bool // guarded by store.mu
}

// ApplyPatches applies every target in order, atomically. Entries that are
// absent or hold no data are skipped. If an update fails, the part already
// applied is reverted and the error returned.
func (s *Store) ApplyPatches(targets ...Target) (*Patch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := &Patch{store: s}
	for _, t := range targets {
		for _, k := range s.targetKeysLocked(t) {
			e := s.entries[k]
			if e == nil || e.data == nil {
				continue
			}
			next, err := t.update(e.data)
			if err != nil {
				s.restoreLocked(p.undo)
				return nil, fmt.Errorf("store: patch %s: %w", k, err)
			}
			if next == nil {
				continue
			}
			p.undo = append(p.undo, undoRecord{entry: e, prior: e.data, fetchGen: e.fetchGen})
			e.data = next
			s.notifyLocked(e)
		}
	}
	p.applied = len(p.undo)
	s.obs.PatchesApplied(p.applied)
	return p, nil
}

func (s *Store) targetKeysLocked(t Target) []Key {
	if !t.byTag {
		return []Key{t.key}
	}
	keys := s.keysLocked(t.tag)
	if len(t.endpoints) == 0 {
		return keys
	}
	return slices.DeleteFunc(keys, func(k Key) bool {
		return !slices.Contains(t.endpoints, k.Endpoint)
	})
}

// restoreLocked reverts undo in reverse order. Entries that were evicted,
// reset or refilled by a fetch since the patch keep their current data.
func (s *Store) restoreLocked(undo []undoRecord) int {
	n := 0
	for i := len(undo) - 1; i >= 0; i-- {
		u := undo[i]
		e := u.entry
		if s.entries[e.key] != e || e.fetchGen != u.fetchGen {
			continue
		}
		e.data = u.prior
		s.notifyLocked(e)
		n++
	}
	return n
}

// Len returns the number of entry writes in the patch.
func (p *Patch) Len() int { return p.applied }

// Commit keeps the patched values. Commit and Rollback are idempotent and
// only the first of them has an effect.
func (p *Patch) Commit() {
	p.store.mu.Lock()
	defer p.store.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	p.undo = nil
}

// Rollback restores every touched entry to its pre-patch value in reverse
// application order.
func (p *Patch) Rollback() {
	s := p.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.done {
		return
	}
	p.done = true
	n := s.restoreLocked(p.undo)
	p.undo = nil
	s.obs.RolledBack(n)
}
