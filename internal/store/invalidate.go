package store

import (
	"log/slog"
	"slices"
)

// InvalidateTags marks every entry carrying any of tags as stale and
// refetches the subscribed ones in the background. An entry already loading
// is left alone: the request in flight satisfies the invalidation. Data is
// never written here. Returns the number of entries affected.
func (s *Store) InvalidateTags(tags ...Tag) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	var keys []Key
	seen := make(map[Key]struct{})
	for _, t := range tags {
		for _, k := range s.keysLocked(t) {
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	slices.SortFunc(keys, compareKeys)

	n := 0
	for _, k := range keys {
		e := s.entries[k]
		n++
		if e.status == StatusLoading {
			s.obs.Coalesced()
			continue
		}
		e.stale = true
		if len(e.subs) > 0 && e.refetchable() {
			s.obs.Refetched()
			s.startFetchLocked(e)
		}
	}
	if n > 0 {
		s.obs.Invalidated(n)
		slog.LogAttrs(s.baseCtx, slog.LevelDebug, "invalidated entries",
			slog.Int("count", n),
			slog.Any("tags", tagStrings(tags)),
		)
	}
	return n
}

func tagStrings(tags []Tag) []string {
	out := make([]string, len(tags))
	for i, t := range tags {
		out[i] = t.String()
	}
	return out
}
