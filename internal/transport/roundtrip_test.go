package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/dnscache"
)

// recordingTransport captures the last request for inspection.
type recordingTransport struct {
	lastReq *http.Request
}

func (rt *recordingTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	rt.lastReq = r
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestHeaderTransport(t *testing.T) {
	t.Parallel()

	rec := &recordingTransport{}
	tr := &headerTransport{UserAgent: "blogsync/1.0", Base: rec}

	req, _ := http.NewRequest(http.MethodGet, "https://blog.example.com/api/posts", nil)
	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatalf("RoundTrip: %v", err)
	}
	resp.Body.Close()

	if got := rec.lastReq.Header.Get("User-Agent"); got != "blogsync/1.0" {
		t.Errorf("User-Agent = %q", got)
	}
	if got := rec.lastReq.Header.Get("Accept"); got != "application/json" {
		t.Errorf("Accept = %q", got)
	}
	if req.Header.Get("User-Agent") != "" {
		t.Error("original request should not be modified")
	}
}

func TestNewHTTPTransport(t *testing.T) {
	t.Parallel()

	tr := NewHTTPTransport(nil)
	if tr.IdleConnTimeout != 90*time.Second {
		t.Errorf("IdleConnTimeout = %v, want 90s", tr.IdleConnTimeout)
	}
	if !tr.ForceAttemptHTTP2 {
		t.Error("ForceAttemptHTTP2 should be true")
	}
	if tr.DialContext != nil {
		t.Error("DialContext should be nil when resolver is nil")
	}

	if NewHTTPTransport(&dnscache.Resolver{}).DialContext == nil {
		t.Error("DialContext should be set when resolver is non-nil")
	}
}

func TestNewHTTPTransport_ResolverDials(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewHTTPTransport(&dnscache.Resolver{})}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}
