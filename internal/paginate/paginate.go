// Package paginate merges successive pages of a list into one ordered,
// de-duplicated sequence.
package paginate

// Accumulator collects pages of T keyed by an id function. It is not safe
// for concurrent use.
type Accumulator[T any] struct {
	id      func(T) string
	items   []T
	seen    map[string]struct{}
	page    int
	hasMore bool
}

// New returns an empty accumulator identifying items by id.
func New[T any](id func(T) string) *Accumulator[T] {
	return &Accumulator[T]{id: id, seen: make(map[string]struct{})}
}

// Apply merges one page. Page 1 (or lower) replaces the sequence; later
// pages append the items not seen yet, in order. hasMore of the latest page
// wins.
func (a *Accumulator[T]) Apply(page int, items []T, hasMore bool) {
	if page <= 1 {
		page = 1
		a.items = a.items[:0]
		clear(a.seen)
	}
	for _, it := range items {
		k := a.id(it)
		if _, dup := a.seen[k]; dup {
			continue
		}
		a.seen[k] = struct{}{}
		a.items = append(a.items, it)
	}
	a.page = page
	a.hasMore = hasMore
}

// Items returns a copy of the accumulated sequence.
func (a *Accumulator[T]) Items() []T {
	out := make([]T, len(a.items))
	copy(out, a.items)
	return out
}

// Len returns the number of accumulated items.
func (a *Accumulator[T]) Len() int { return len(a.items) }

// HasMore reports whether the latest page announced more pages.
func (a *Accumulator[T]) HasMore() bool { return a.hasMore }

// Page returns the latest applied page number, 0 before the first.
func (a *Accumulator[T]) Page() int { return a.page }

// NextPage returns the page to request next.
func (a *Accumulator[T]) NextPage() int { return a.page + 1 }

// Reset clears the accumulator.
func (a *Accumulator[T]) Reset() {
	a.items = nil
	clear(a.seen)
	a.page = 0
	a.hasMore = false
}
