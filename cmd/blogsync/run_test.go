package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	blogsync "github.com/eugener/blogsync/internal"
	"github.com/eugener/blogsync/internal/testutil"
)

func writeConfig(t *testing.T, baseURL, email, password string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "blogsync.yaml")
	data := fmt.Sprintf(`
api:
  base_url: %s
  page_limit: 2
cache:
  sweep_interval: 1h
credentials:
  email: %s
  password: %s
`, baseURL, email, password)
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRun_Feed(t *testing.T) {
	t.Parallel()
	fake := testutil.NewFakeAPI(t)
	u := fake.AddUser("alice", "alice@example.com", "secret")
	for i := range 5 {
		fake.AddPost(u.ID, fmt.Sprintf("post %d", i))
	}
	cfg := writeConfig(t, fake.URL(), "alice@example.com", "secret")

	var out bytes.Buffer
	if err := run(t.Context(), options{configPath: cfg, args: []string{"feed"}}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var posts []blogsync.Post
	if err := json.Unmarshal(out.Bytes(), &posts); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out.String())
	}
	if len(posts) != 5 {
		t.Errorf("got %d posts, want 5", len(posts))
	}
	if n := fake.Calls(http.MethodPost, "/auth/logout"); n != 1 {
		t.Errorf("logout calls = %d, want 1", n)
	}
}

func TestRun_FeedPageLimit(t *testing.T) {
	t.Parallel()
	fake := testutil.NewFakeAPI(t)
	u := fake.AddUser("alice", "alice@example.com", "secret")
	for i := range 5 {
		fake.AddPost(u.ID, fmt.Sprintf("post %d", i))
	}
	cfg := writeConfig(t, fake.URL(), "alice@example.com", "secret")

	var out bytes.Buffer
	if err := run(t.Context(), options{configPath: cfg, args: []string{"feed", "1"}}, &out); err != nil {
		t.Fatalf("run: %v", err)
	}
	var posts []blogsync.Post
	if err := json.Unmarshal(out.Bytes(), &posts); err != nil {
		t.Fatal(err)
	}
	if len(posts) != 2 || posts[0].Content != "post 4" {
		t.Errorf("posts = %+v, want the two newest", posts)
	}
}

func TestRun_LikeThenPost(t *testing.T) {
	t.Parallel()
	fake := testutil.NewFakeAPI(t)
	u := fake.AddUser("alice", "alice@example.com", "secret")
	id := fake.AddPost(u.ID, "hello")
	cfg := writeConfig(t, fake.URL(), "alice@example.com", "secret")

	if err := run(t.Context(), options{configPath: cfg, args: []string{"like", id}}, &bytes.Buffer{}); err != nil {
		t.Fatalf("like: %v", err)
	}

	var out bytes.Buffer
	if err := run(t.Context(), options{configPath: cfg, args: []string{"post", id}}, &out); err != nil {
		t.Fatalf("post: %v", err)
	}
	var p blogsync.Post
	if err := json.Unmarshal(out.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Likes != 1 || !p.IsLiked {
		t.Errorf("post = %+v, want liked once", p)
	}
}

func TestRun_Comment(t *testing.T) {
	t.Parallel()
	fake := testutil.NewFakeAPI(t)
	u := fake.AddUser("alice", "alice@example.com", "secret")
	id := fake.AddPost(u.ID, "hello")
	cfg := writeConfig(t, fake.URL(), "alice@example.com", "secret")

	if err := run(t.Context(), options{configPath: cfg, args: []string{"comment", id, "nice"}}, &bytes.Buffer{}); err != nil {
		t.Fatalf("comment: %v", err)
	}
	var out bytes.Buffer
	if err := run(t.Context(), options{configPath: cfg, args: []string{"comments", id}}, &out); err != nil {
		t.Fatalf("comments: %v", err)
	}
	if !strings.Contains(out.String(), `"nice"`) {
		t.Errorf("comments output missing new comment:\n%s", out.String())
	}
}

func TestRun_Errors(t *testing.T) {
	t.Parallel()
	fake := testutil.NewFakeAPI(t)
	fake.AddUser("alice", "alice@example.com", "secret")
	good := writeConfig(t, fake.URL(), "alice@example.com", "secret")
	bad := writeConfig(t, fake.URL(), "alice@example.com", "wrong")

	tests := []struct {
		name    string
		cfg     string
		args    []string
		wantErr string
	}{
		{"no command", good, nil, "no command"},
		{"unknown command", good, []string{"dance"}, "unknown command"},
		{"missing argument", good, []string{"post"}, "usage: blogsync post <id>"},
		{"bad page count", good, []string{"feed", "zero"}, "positive integer"},
		{"bad credentials", bad, []string{"me"}, "login"},
		{"missing config", filepath.Join(t.TempDir(), "nope.yaml"), []string{"me"}, "read config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := run(t.Context(), options{configPath: tt.cfg, args: tt.args}, &bytes.Buffer{})
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestCommandHelpListsEveryCommand(t *testing.T) {
	t.Parallel()
	help := commandHelp()
	for name := range commands {
		if !strings.Contains(help, name) {
			t.Errorf("help missing %q", name)
		}
	}
}
