package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewPedanticRegistry()
	m := NewMetrics(reg)

	m.CacheHit()
	m.CacheMiss()
	m.FetchDone("getPosts", "ok", 20*time.Millisecond)
	m.RequestDone("GET", 200, 10*time.Millisecond)
	m.RefreshDone("ok")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	want := []string{
		"blogsync_cache_hits_total",
		"blogsync_cache_misses_total",
		"blogsync_fetches_total",
		"blogsync_fetch_duration_seconds",
		"blogsync_requests_total",
		"blogsync_request_duration_seconds",
		"blogsync_refreshes_total",
	}
	for _, name := range want {
		if !names[name] {
			t.Errorf("missing metric %q in gathered families", name)
		}
	}
}

func TestObserverMethods(t *testing.T) {
	t.Parallel()

	m := NewMetrics(prometheus.NewRegistry())

	m.Invalidated(3)
	m.Refetched()
	m.Refetched()
	m.Coalesced()
	m.PatchesApplied(4)
	m.RolledBack(2)
	m.Evicted(5)
	m.Discarded()
	m.SessionEnded()
	m.FetchDone("getPost", "auth_expired", time.Millisecond)
	m.RequestDone("POST", 0, time.Millisecond)
	m.RefreshDone("storm")
	m.BreakerStateChanged("posts", "open")

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"invalidations", m.Invalidations, 3},
		{"refetches", m.Refetches, 2},
		{"coalesced", m.CoalescedFetches, 1},
		{"patched", m.PatchedEntries, 4},
		{"rollbacks", m.Rollbacks, 2},
		{"evictions", m.Evictions, 5},
		{"discarded", m.DiscardedResults, 1},
		{"sessions ended", m.SessionsEnded, 1},
		{"fetch outcome", m.Fetches.WithLabelValues("getPost", "auth_expired"), 1},
		{"no response", m.RequestsTotal.WithLabelValues("POST", "0"), 1},
		{"storm", m.Refreshes.WithLabelValues("storm"), 1},
		{"breaker", m.BreakerChanges.WithLabelValues("posts", "open"), 1},
	}
	for _, tt := range tests {
		if got := promtest.ToFloat64(tt.c); got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestSampler(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rate float64
		want string
	}{
		{1, sdktrace.AlwaysSample().Description()},
		{2, sdktrace.AlwaysSample().Description()},
		{0, sdktrace.NeverSample().Description()},
		{-1, sdktrace.NeverSample().Description()},
		{0.5, sdktrace.ParentBased(sdktrace.TraceIDRatioBased(0.5)).Description()},
	}
	for _, tt := range tests {
		if got := Sampler(tt.rate).Description(); got != tt.want {
			t.Errorf("Sampler(%v) = %q, want %q", tt.rate, got, tt.want)
		}
	}
}

// SetupTracing is not unit-tested because it requires a gRPC connection
// to an OTLP collector, which is integration-test territory.
