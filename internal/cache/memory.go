// Package cache provides the conditional GET memory used by the transport.
package cache

import (
	"fmt"
	"time"

	"github.com/maypok86/otter/v2"
)

// Validator is a remembered GET response and the ETag it was served with.
type Validator struct {
	ETag string
	Body []byte
}

// entry wraps a validator with its expiration time.
type entry struct {
	v         Validator
	expiresAt time.Time
}

// Memory is an in-memory W-TinyLFU validator store backed by otter.
// Keys are request URLs including the query string.
type Memory struct {
	cache *otter.Cache[string, entry]
	ttl   time.Duration
}

// NewMemory creates a validator memory with the given max entry count and TTL.
func NewMemory(maxSize int, ttl time.Duration) (*Memory, error) {
	c, err := otter.New[string, entry](&otter.Options[string, entry]{
		MaximumSize:      maxSize,
		ExpiryCalculator: otter.ExpiryWriting[string, entry](ttl),
	})
	if err != nil {
		return nil, fmt.Errorf("create etag memory: %w", err)
	}
	return &Memory{cache: c, ttl: ttl}, nil
}

// Get returns the validator for url if present and not expired.
func (m *Memory) Get(url string) (Validator, bool) {
	e, ok := m.cache.GetIfPresent(url)
	if !ok {
		return Validator{}, false
	}
	if time.Now().After(e.expiresAt) {
		m.cache.Invalidate(url)
		return Validator{}, false
	}
	return e.v, true
}

// Set remembers a validator. Responses without an ETag are not stored.
func (m *Memory) Set(url string, v Validator) {
	if v.ETag == "" {
		return
	}
	m.cache.Set(url, entry{v: v, expiresAt: time.Now().Add(m.ttl)})
}

// Delete forgets the validator for url.
func (m *Memory) Delete(url string) {
	m.cache.Invalidate(url)
}

// Purge forgets every validator. Called when the session ends.
func (m *Memory) Purge() {
	m.cache.InvalidateAll()
}
