package reauth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	blogsync "github.com/eugener/blogsync/internal"
	"github.com/eugener/blogsync/internal/testutil"
)

type countingObserver struct {
	mu       sync.Mutex
	outcomes []string
	ended    int
}

func (o *countingObserver) RefreshDone(outcome string) {
	o.mu.Lock()
	o.outcomes = append(o.outcomes, outcome)
	o.mu.Unlock()
}

func (o *countingObserver) SessionEnded() {
	o.mu.Lock()
	o.ended++
	o.mu.Unlock()
}

var getPosts = blogsync.Request{Method: http.MethodGet, Path: "/posts"}

func TestDo_PassThrough(t *testing.T) {
	t.Parallel()

	fake := &testutil.FakeDoer{DoFn: func(context.Context, blogsync.Request) (json.RawMessage, error) {
		return json.RawMessage(`{"ok":true}`), nil
	}}
	r := New(fake, Options{})

	data, err := r.Do(t.Context(), getPosts)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"ok":true}` {
		t.Errorf("data = %s", data)
	}
	if fake.CallCount(DefaultRefreshPath) != 0 {
		t.Error("refresh should not be called")
	}
}

func TestDo_RefreshAndRetry(t *testing.T) {
	t.Parallel()

	var postCalls atomic.Int32
	fake := &testutil.FakeDoer{DoFn: func(_ context.Context, req blogsync.Request) (json.RawMessage, error) {
		switch req.Path {
		case DefaultRefreshPath:
			return json.RawMessage(`{}`), nil
		case "/posts":
			if postCalls.Add(1) == 1 {
				return nil, testutil.StatusError(req, http.StatusUnauthorized)
			}
			return json.RawMessage(`{"items":[{"_id":"p1"}]}`), nil
		}
		t.Errorf("unexpected path %s", req.Path)
		return nil, nil
	}}
	obs := &countingObserver{}
	r := New(fake, Options{Observer: obs})
	var ended atomic.Int32
	r.OnSessionEnd(func() { ended.Add(1) })

	req := getPosts
	req.Body = map[string]string{"k": "v"}
	data, err := r.Do(t.Context(), req)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != `{"items":[{"_id":"p1"}]}` {
		t.Errorf("data = %s", data)
	}
	if got := fake.CallCount("/posts"); got != 2 {
		t.Errorf("/posts calls = %d, want 2", got)
	}
	if got := fake.CallCount(DefaultRefreshPath); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	calls := fake.Calls()
	first, replay := calls[0], calls[2]
	if first.Method != replay.Method || first.Path != replay.Path || replay.Body == nil {
		t.Errorf("replay %+v differs from original %+v", replay, first)
	}
	if ended.Load() != 0 {
		t.Error("session should not end")
	}
	if len(obs.outcomes) != 1 || obs.outcomes[0] != OutcomeOK {
		t.Errorf("outcomes = %v", obs.outcomes)
	}
}

func TestDo_RefreshFailureEndsSession(t *testing.T) {
	t.Parallel()

	fake := &testutil.FakeDoer{DoFn: func(_ context.Context, req blogsync.Request) (json.RawMessage, error) {
		return nil, testutil.StatusError(req, http.StatusUnauthorized)
	}}
	obs := &countingObserver{}
	r := New(fake, Options{Observer: obs})
	var ended atomic.Int32
	r.OnSessionEnd(func() { ended.Add(1) })

	_, err := r.Do(t.Context(), getPosts)
	if !errors.Is(err, blogsync.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if blogsync.Classify(err) != blogsync.KindAuthInvalid {
		t.Errorf("Classify = %v, want auth_invalid", blogsync.Classify(err))
	}
	if got := fake.CallCount("/posts"); got != 1 {
		t.Errorf("/posts calls = %d, want 1", got)
	}
	if got := fake.CallCount(DefaultRefreshPath); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
	if ended.Load() != 1 {
		t.Errorf("session end callbacks = %d, want 1", ended.Load())
	}
	if obs.ended != 1 || len(obs.outcomes) != 1 || obs.outcomes[0] != OutcomeFailed {
		t.Errorf("observer = %+v", obs)
	}
}

func TestDo_ReplayOutcomeReturnedAsIs(t *testing.T) {
	t.Parallel()

	fake := &testutil.FakeDoer{DoFn: func(_ context.Context, req blogsync.Request) (json.RawMessage, error) {
		if req.Path == DefaultRefreshPath {
			return json.RawMessage(`{}`), nil
		}
		return nil, testutil.StatusError(req, http.StatusUnauthorized)
	}}
	r := New(fake, Options{})

	_, err := r.Do(t.Context(), getPosts)
	if !errors.Is(err, blogsync.ErrUnauthorized) {
		t.Fatalf("err = %v, want the replay's 401", err)
	}
	if got := fake.CallCount("/posts"); got != 2 {
		t.Errorf("/posts calls = %d, want 2", got)
	}
	if got := fake.CallCount(DefaultRefreshPath); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestDo_Exempt(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  blogsync.Request
	}{
		{"skip flag", blogsync.Request{Method: http.MethodPost, Path: "/auth/login", SkipReauth: true}},
		{"refresh path", blogsync.Request{Method: http.MethodPost, Path: DefaultRefreshPath}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			fake := &testutil.FakeDoer{DoFn: func(_ context.Context, req blogsync.Request) (json.RawMessage, error) {
				return nil, testutil.StatusError(req, http.StatusUnauthorized)
			}}
			r := New(fake, Options{})

			_, err := r.Do(t.Context(), tt.req)
			if !errors.Is(err, blogsync.ErrUnauthorized) {
				t.Errorf("err = %v, want ErrUnauthorized", err)
			}
			if len(fake.Calls()) != 1 {
				t.Errorf("calls = %d, want 1", len(fake.Calls()))
			}
		})
	}
}

func TestDo_NonAuthErrorsPropagate(t *testing.T) {
	t.Parallel()

	fake := &testutil.FakeDoer{DoFn: func(_ context.Context, req blogsync.Request) (json.RawMessage, error) {
		return nil, testutil.StatusError(req, http.StatusInternalServerError)
	}}
	r := New(fake, Options{})

	_, err := r.Do(t.Context(), getPosts)
	if !errors.Is(err, blogsync.ErrServer) {
		t.Errorf("err = %v, want ErrServer", err)
	}
	if fake.CallCount(DefaultRefreshPath) != 0 {
		t.Error("refresh should not be called")
	}
}

func TestDo_ConcurrentRefreshShared(t *testing.T) {
	t.Parallel()

	const callers = 8
	var refreshed atomic.Bool
	var waiting sync.WaitGroup
	waiting.Add(callers)
	gate := make(chan struct{})

	fake := &testutil.FakeDoer{DoFn: func(_ context.Context, req blogsync.Request) (json.RawMessage, error) {
		if req.Path == DefaultRefreshPath {
			<-gate
			refreshed.Store(true)
			return json.RawMessage(`{}`), nil
		}
		if !refreshed.Load() {
			waiting.Done()
			return nil, testutil.StatusError(req, http.StatusUnauthorized)
		}
		return json.RawMessage(`{}`), nil
	}}
	r := New(fake, Options{})

	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Go(func() {
			_, err := r.Do(t.Context(), getPosts)
			errs <- err
		})
	}
	// Every caller has seen its 401 before the refresh is allowed to finish.
	waiting.Wait()
	time.Sleep(20 * time.Millisecond)
	close(gate)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Do: %v", err)
		}
	}
	if got := fake.CallCount(DefaultRefreshPath); got != 1 {
		t.Errorf("refresh calls = %d, want 1", got)
	}
}

func TestDo_RefreshStormEndsSession(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	fake := &testutil.FakeDoer{DoFn: func(_ context.Context, req blogsync.Request) (json.RawMessage, error) {
		if req.Path == DefaultRefreshPath {
			return json.RawMessage(`{}`), nil
		}
		return nil, testutil.StatusError(req, http.StatusUnauthorized)
	}}
	obs := &countingObserver{}
	r := New(fake, Options{
		MaxRefreshes:  2,
		RefreshWindow: time.Minute,
		Observer:      obs,
		Now:           func() time.Time { return now },
	})
	var ended atomic.Int32
	r.OnSessionEnd(func() { ended.Add(1) })

	for range 2 {
		if _, err := r.Do(t.Context(), getPosts); errors.Is(err, blogsync.ErrSessionExpired) {
			t.Fatalf("session ended too early: %v", err)
		}
	}
	_, err := r.Do(t.Context(), getPosts)
	if !errors.Is(err, blogsync.ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if got := fake.CallCount(DefaultRefreshPath); got != 2 {
		t.Errorf("refresh calls = %d, want 2", got)
	}
	if ended.Load() != 1 {
		t.Errorf("session end callbacks = %d, want 1", ended.Load())
	}

	// Outside the window refreshes are allowed again.
	now = now.Add(2 * time.Minute)
	if _, err := r.Do(t.Context(), getPosts); errors.Is(err, blogsync.ErrSessionExpired) {
		t.Errorf("after window: %v", err)
	}
}

func TestEndSession(t *testing.T) {
	t.Parallel()

	r := New(&testutil.FakeDoer{}, Options{})
	var order []string
	r.OnSessionEnd(func() { order = append(order, "store") })
	r.OnSessionEnd(func() { order = append(order, "jar") })

	r.EndSession(t.Context())
	if len(order) != 2 || order[0] != "store" || order[1] != "jar" {
		t.Errorf("order = %v", order)
	}
}
