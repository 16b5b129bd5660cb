package store

import "time"

// Observer receives store events. telemetry.Metrics implements it.
type Observer interface {
	CacheHit()
	CacheMiss()
	FetchDone(endpoint, outcome string, elapsed time.Duration)
	Invalidated(entries int)
	Refetched()
	Coalesced()
	PatchesApplied(entries int)
	RolledBack(entries int)
	Evicted(entries int)
	Discarded()
}

type nopObserver struct{}

func (nopObserver) CacheHit()                               {}
func (nopObserver) CacheMiss()                              {}
func (nopObserver) FetchDone(string, string, time.Duration) {}
func (nopObserver) Invalidated(int)                         {}
func (nopObserver) Refetched()                              {}
func (nopObserver) Coalesced()                              {}
func (nopObserver) PatchesApplied(int)                      {}
func (nopObserver) RolledBack(int)                          {}
func (nopObserver) Evicted(int)                             {}
func (nopObserver) Discarded()                              {}
