package store

import (
	"context"
	"encoding/json"
	"time"
)

// Status is the lifecycle state of a cached entry.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusFulfilled
	StatusRejected
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusLoading:
		return "loading"
	case StatusFulfilled:
		return "fulfilled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// FetchFunc loads the data for one key.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

// TagsFunc derives the tags a fetched result carries.
type TagsFunc func(data json.RawMessage) []Tag

// Definition tells the store how to fill and label an entry.
type Definition struct {
	Fetch FetchFunc
	Tags  TagsFunc
}

// Entry is a point-in-time copy of a cached entry. Data must not be modified.
type Entry struct {
	Key  Key
	Data json.RawMessage
	// LastFulfilled is the last server-confirmed data. Optimistic patches
	// change Data but never LastFulfilled.
	LastFulfilled json.RawMessage
	Status        Status
	Err           error
	Tags          []Tag
	Subscribers   int
	Stale         bool
	FulfilledAt   time.Time
}

// entry is the mutable record behind an Entry. Guarded by Store.mu.
type entry struct {
	key         Key
	data        json.RawMessage
	confirmed   json.RawMessage // last fetched or upserted data, untouched by patches
	status      Status
	prevStatus  Status // restored when a fetch result is discarded
	err         error
	tags        []Tag
	subs        map[*Subscription]struct{}
	stale       bool
	fulfilledAt time.Time
	idleSince   time.Time
	def         Definition
	flight      *flight
	fetchGen    uint64 // bumped on every applied fetch result
	orphanErr   error  // error of a fetch that resolved after the entry was dropped
}

// flight is the promise shared by every waiter of one fetch.
type flight struct {
	done chan struct{}
}

func (e *entry) snapshot() Entry {
	tags := make([]Tag, len(e.tags))
	copy(tags, e.tags)
	return Entry{
		Key:           e.key,
		Data:          e.data,
		LastFulfilled: e.confirmed,
		Status:        e.status,
		Err:           e.err,
		Tags:          tags,
		Subscribers:   len(e.subs),
		Stale:         e.stale,
		FulfilledAt:   e.fulfilledAt,
	}
}

// refetchable reports whether a fetch can be started for e.
func (e *entry) refetchable() bool {
	return e.status != StatusLoading && e.def.Fetch != nil
}
