// Package telemetry provides observability primitives for the blogsync client.
package telemetry

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/eugener/blogsync/internal/reauth"
	"github.com/eugener/blogsync/internal/store"
	"github.com/eugener/blogsync/internal/transport"
)

var (
	_ store.Observer     = (*Metrics)(nil)
	_ transport.Observer = (*Metrics)(nil)
	_ reauth.Observer    = (*Metrics)(nil)
)

// Metrics holds all Prometheus collectors for the client. It implements the
// store, transport, reauth and circuit breaker observers.
type Metrics struct {
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	Fetches          *prometheus.CounterVec
	FetchDuration    *prometheus.HistogramVec
	Invalidations    prometheus.Counter
	Refetches        prometheus.Counter
	CoalescedFetches prometheus.Counter
	PatchedEntries   prometheus.Counter
	Rollbacks        prometheus.Counter
	Evictions        prometheus.Counter
	DiscardedResults prometheus.Counter
	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	Refreshes        *prometheus.CounterVec
	SessionsEnded    prometheus.Counter
	BreakerChanges   *prometheus.CounterVec
}

func counter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{Namespace: "blogsync", Name: name, Help: help})
}

func histogram(name, help string, labels ...string) *prometheus.HistogramVec {
	return prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:                       "blogsync",
		Name:                            name,
		Help:                            help,
		NativeHistogramBucketFactor:     1.1,
		NativeHistogramMaxBucketNumber:  100,
		NativeHistogramMinResetDuration: 0,
	}, labels)
}

// NewMetrics creates and registers all metrics with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits:   counter("cache_hits_total", "Subscriptions served from fresh cached data."),
		CacheMisses: counter("cache_misses_total", "Subscriptions that started a fetch."),

		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogsync",
			Name:      "fetches_total",
			Help:      "Completed query fetches by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		FetchDuration: histogram("fetch_duration_seconds", "Query fetch duration in seconds.", "endpoint"),

		Invalidations:    counter("invalidations_total", "Entries marked stale by tag invalidation."),
		Refetches:        counter("refetches_total", "Fetches started by invalidation."),
		CoalescedFetches: counter("coalesced_total", "Subscriptions or invalidations joined to an in-flight fetch."),
		PatchedEntries:   counter("patches_applied_total", "Entries changed by optimistic patches."),
		Rollbacks:        counter("rollbacks_total", "Entries restored by patch rollbacks."),
		Evictions:        counter("evictions_total", "Idle entries evicted."),
		DiscardedResults: counter("discarded_results_total", "Fetch results dropped after reset, eviction or unsubscribe."),

		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogsync",
			Name:      "requests_total",
			Help:      "HTTP round trips by method and status (0 when no response).",
		}, []string{"method", "status"}),
		RequestDuration: histogram("request_duration_seconds", "HTTP round trip duration in seconds.", "method"),

		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogsync",
			Name:      "refreshes_total",
			Help:      "Session refresh attempts by outcome.",
		}, []string{"outcome"}),
		SessionsEnded: counter("sessions_ended_total", "Sessions ended by logout or failed refresh."),

		BreakerChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "blogsync",
			Name:      "circuit_breaker_transitions_total",
			Help:      "Circuit breaker state transitions by resource group and new state.",
		}, []string{"group", "state"}),
	}

	reg.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.Fetches,
		m.FetchDuration,
		m.Invalidations,
		m.Refetches,
		m.CoalescedFetches,
		m.PatchedEntries,
		m.Rollbacks,
		m.Evictions,
		m.DiscardedResults,
		m.RequestsTotal,
		m.RequestDuration,
		m.Refreshes,
		m.SessionsEnded,
		m.BreakerChanges,
	)

	return m
}

// --- store.Observer ---

func (m *Metrics) CacheHit()  { m.CacheHits.Inc() }
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }

func (m *Metrics) FetchDone(endpoint, outcome string, elapsed time.Duration) {
	m.Fetches.WithLabelValues(endpoint, outcome).Inc()
	m.FetchDuration.WithLabelValues(endpoint).Observe(elapsed.Seconds())
}

func (m *Metrics) Invalidated(n int)    { m.Invalidations.Add(float64(n)) }
func (m *Metrics) Refetched()           { m.Refetches.Inc() }
func (m *Metrics) Coalesced()           { m.CoalescedFetches.Inc() }
func (m *Metrics) PatchesApplied(n int) { m.PatchedEntries.Add(float64(n)) }
func (m *Metrics) RolledBack(n int)     { m.Rollbacks.Add(float64(n)) }
func (m *Metrics) Evicted(n int)        { m.Evictions.Add(float64(n)) }
func (m *Metrics) Discarded()           { m.DiscardedResults.Inc() }

// --- transport.Observer ---

func (m *Metrics) RequestDone(method string, status int, elapsed time.Duration) {
	m.RequestsTotal.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// --- reauth.Observer ---

func (m *Metrics) RefreshDone(outcome string) { m.Refreshes.WithLabelValues(outcome).Inc() }
func (m *Metrics) SessionEnded()              { m.SessionsEnded.Inc() }

// --- circuitbreaker.Observer ---

func (m *Metrics) BreakerStateChanged(group, state string) {
	m.BreakerChanges.WithLabelValues(group, state).Inc()
}
