package blogsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
)

type statusError int

func (e statusError) Error() string   { return fmt.Sprintf("HTTP %d", int(e)) }
func (e statusError) HTTPStatus() int { return int(e) }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"401", statusError(401), KindAuthExpired},
		{"wrapped 401", fmt.Errorf("GET /posts: %w", statusError(401)), KindAuthExpired},
		{"400", statusError(400), KindValidation},
		{"404", statusError(404), KindValidation},
		{"409", statusError(409), KindValidation},
		{"500", statusError(500), KindServer},
		{"503", statusError(503), KindServer},
		{"deadline", context.DeadlineExceeded, KindNetwork},
		{"network", fmt.Errorf("dial: %w", ErrNetwork), KindNetwork},
		{"session expired", ErrSessionExpired, KindAuthInvalid},
		{"session expired wins over 401", fmt.Errorf("%w: %w", ErrSessionExpired, statusError(401)), KindAuthInvalid},
		{"unauthorized sentinel", ErrUnauthorized, KindAuthExpired},
		{"conflict sentinel", ErrConflict, KindValidation},
		{"unknown", errors.New("boom"), KindNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestSentinelForStatus(t *testing.T) {
	t.Parallel()

	tests := map[int]error{
		200: nil,
		400: ErrValidation,
		401: ErrUnauthorized,
		404: ErrNotFound,
		409: ErrConflict,
		422: ErrValidation,
		502: ErrServer,
	}
	for code, want := range tests {
		if got := SentinelForStatus(code); got != want {
			t.Errorf("SentinelForStatus(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestErrorKind_String(t *testing.T) {
	t.Parallel()
	if got := KindAuthExpired.String(); got != "auth_expired" {
		t.Errorf("String() = %q", got)
	}
	if got := ErrorKind(42).String(); got != "unknown" {
		t.Errorf("String() = %q", got)
	}
}

func TestPage_Envelopes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []string
		more bool
	}{
		{"items", `{"items":[{"_id":"a"},{"_id":"b"}],"hasMore":true}`, []string{"a", "b"}, true},
		{"message", `{"message":[{"_id":"c"}],"hasMore":false}`, []string{"c"}, false},
		{"empty", `{"items":[],"hasMore":false}`, nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var p Page[Post]
			if err := json.Unmarshal([]byte(tt.body), &p); err != nil {
				t.Fatal(err)
			}
			if len(p.Items) != len(tt.want) {
				t.Fatalf("items = %+v, want ids %v", p.Items, tt.want)
			}
			for i, id := range tt.want {
				if p.Items[i].ID != id {
					t.Errorf("item %d id = %q, want %q", i, p.Items[i].ID, id)
				}
			}
			if p.HasMore != tt.more {
				t.Errorf("hasMore = %v, want %v", p.HasMore, tt.more)
			}
		})
	}
}

func TestRequestIDContext(t *testing.T) {
	t.Parallel()
	ctx := ContextWithRequestID(t.Context(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Errorf("RequestIDFromContext = %q", got)
	}
	if got := RequestIDFromContext(t.Context()); got != "" {
		t.Errorf("empty context = %q, want empty", got)
	}
}
