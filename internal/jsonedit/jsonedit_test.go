package jsonedit

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// normalize re-encodes JSON so comparisons ignore formatting.
func normalize(t *testing.T, data []byte) any {
	t.Helper()
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		t.Fatalf("invalid JSON %s: %v", data, err)
	}
	return v
}

func TestEntity(t *testing.T) {
	t.Parallel()

	like := []Edit{Set("isLiked", true), AddInt("likes", 1)}
	tests := []struct {
		name  string
		prior string
		want  string // empty = unchanged (nil)
	}{
		{
			name:  "single entity",
			prior: `{"_id":"p1","likes":2,"isLiked":false}`,
			want:  `{"_id":"p1","likes":3,"isLiked":true}`,
		},
		{
			name:  "items envelope",
			prior: `{"items":[{"_id":"p0","likes":0},{"_id":"p1","likes":5,"isLiked":false}],"hasMore":true}`,
			want:  `{"items":[{"_id":"p0","likes":0},{"_id":"p1","likes":6,"isLiked":true}],"hasMore":true}`,
		},
		{
			name:  "message envelope",
			prior: `{"message":[{"_id":"p1","likes":0}]}`,
			want:  `{"message":[{"_id":"p1","likes":1,"isLiked":true}]}`,
		},
		{name: "absent from list", prior: `{"items":[{"_id":"p2"}]}`},
		{name: "other entity", prior: `{"_id":"p2","likes":1}`},
		{name: "scalar", prior: `"hello"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			prior := json.RawMessage(tt.prior)
			got, err := Entity("p1", like...)(prior)
			if err != nil {
				t.Fatal(err)
			}
			if string(prior) != tt.prior {
				t.Errorf("prior modified: %s", prior)
			}
			if tt.want == "" {
				if got != nil {
					t.Errorf("got %s, want unchanged", got)
				}
				return
			}
			if diff := cmp.Diff(normalize(t, []byte(tt.want)), normalize(t, got)); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestRemove(t *testing.T) {
	t.Parallel()

	prior := json.RawMessage(`{"items":[{"_id":"c1"},{"_id":"c2"},{"_id":"c3"}],"hasMore":false}`)
	got, err := Remove("c2")(prior)
	if err != nil {
		t.Fatal(err)
	}
	want := `{"items":[{"_id":"c1"},{"_id":"c3"}],"hasMore":false}`
	if diff := cmp.Diff(normalize(t, []byte(want)), normalize(t, got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}

	if got, _ := Remove("c9")(prior); got != nil {
		t.Errorf("absent id should leave list unchanged, got %s", got)
	}
	if got, _ := Remove("c1")(json.RawMessage(`{"_id":"c1"}`)); got != nil {
		t.Errorf("single entity should be left alone, got %s", got)
	}
}

func TestAddInt_ClampsAtZero(t *testing.T) {
	t.Parallel()

	tests := []struct {
		obj   string
		delta int
		want  int64
	}{
		{`{"likes":0}`, -1, 0},
		{`{"likes":1}`, -1, 0},
		{`{"likes":1}`, -5, 0},
		{`{"likes":4}`, 1, 5},
		{`{}`, -1, 0},
		{`{}`, 1, 1},
	}
	for _, tt := range tests {
		out, err := AddInt("likes", tt.delta)([]byte(tt.obj))
		if err != nil {
			t.Fatal(err)
		}
		var got struct{ Likes int64 }
		if err := json.Unmarshal(out, &got); err != nil {
			t.Fatal(err)
		}
		if got.Likes != tt.want {
			t.Errorf("AddInt(%s, %d) = %d, want %d", tt.obj, tt.delta, got.Likes, tt.want)
		}
	}
}

func TestSetAll(t *testing.T) {
	t.Parallel()

	out, err := SetAll(map[string]any{"name": "Ada", "bio": "math"})([]byte(`{"_id":"u1","name":"A"}`))
	if err != nil {
		t.Fatal(err)
	}
	want := `{"_id":"u1","name":"Ada","bio":"math"}`
	if diff := cmp.Diff(normalize(t, []byte(want)), normalize(t, out)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestIDs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
		want []string
	}{
		{"items", `{"items":[{"_id":"a"},{"_id":"b"}]}`, []string{"a", "b"}},
		{"message", `{"message":[{"_id":"c"}]}`, []string{"c"}},
		{"single", `{"_id":"d","name":"x"}`, []string{"d"}},
		{"empty", `{"items":[]}`, nil},
		{"not json entity", `null`, nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, IDs([]byte(tt.data))); diff != "" {
			t.Errorf("%s: IDs mismatch (-want +got):\n%s", tt.name, diff)
		}
	}
}

func TestEmptyIDMatchesNothing(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		prior string
	}{
		{name: "object without id", prior: `{"name":"x"}`},
		{name: "list items without id", prior: `{"items":[{"name":"x"},{"name":"y"}]}`},
		{name: "bare array without id", prior: `[{"name":"x"}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			prior := json.RawMessage(tt.prior)
			if got, err := Entity("", Set("name", "z"))(prior); err != nil || got != nil {
				t.Errorf("Entity(\"\") = %s, %v; want unchanged", got, err)
			}
			if got, err := Remove("")(prior); err != nil || got != nil {
				t.Errorf("Remove(\"\") = %s, %v; want unchanged", got, err)
			}
		})
	}
}
