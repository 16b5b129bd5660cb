// Package testutil provides configurable test fakes for blogsync interfaces.
package testutil

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	blogsync "github.com/eugener/blogsync/internal"
	"github.com/eugener/blogsync/internal/transport"
)

// FakeDoer is a configurable blogsync.Doer that records every request.
type FakeDoer struct {
	DoFn func(ctx context.Context, req blogsync.Request) (json.RawMessage, error)

	mu    sync.Mutex
	calls []blogsync.Request
}

// Do records req and delegates to DoFn or returns an empty object.
func (f *FakeDoer) Do(ctx context.Context, req blogsync.Request) (json.RawMessage, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if f.DoFn != nil {
		return f.DoFn(ctx, req)
	}
	return json.RawMessage(`{}`), nil
}

// Calls returns a copy of the recorded requests in arrival order.
func (f *FakeDoer) Calls() []blogsync.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]blogsync.Request, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many recorded requests targeted path.
func (f *FakeDoer) CallCount(path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Path == path {
			n++
		}
	}
	return n
}

// StatusError returns the error the transport produces for a response with
// the given status code.
func StatusError(req blogsync.Request, status int) error {
	return &transport.APIError{
		Status:  status,
		Message: http.StatusText(status),
		Method:  req.Method,
		Path:    req.Path,
	}
}
