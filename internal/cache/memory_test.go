package cache

import (
	"testing"
	"time"
)

func TestMemory_GetSetDelete(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := m.Get("/posts?page=1"); ok {
		t.Error("should not find missing key")
	}

	m.Set("/posts?page=1", Validator{ETag: `"v1"`, Body: []byte(`{"items":[]}`)})
	got, ok := m.Get("/posts?page=1")
	if !ok {
		t.Fatal("should find validator")
	}
	if got.ETag != `"v1"` || string(got.Body) != `{"items":[]}` {
		t.Errorf("validator = %+v", got)
	}

	m.Delete("/posts?page=1")
	if _, ok := m.Get("/posts?page=1"); ok {
		t.Error("should not find deleted key")
	}
}

func TestMemory_SkipsEmptyETag(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	m.Set("/auth/me", Validator{Body: []byte(`{}`)})
	if _, ok := m.Get("/auth/me"); ok {
		t.Error("validator without etag should not be stored")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	m.Set("/posts/1", Validator{ETag: `"a"`, Body: []byte(`{}`)})
	time.Sleep(100 * time.Millisecond)

	if _, ok := m.Get("/posts/1"); ok {
		t.Error("entry should be expired")
	}
}

func TestMemory_Purge(t *testing.T) {
	t.Parallel()
	m, err := NewMemory(100, time.Minute)
	if err != nil {
		t.Fatal(err)
	}

	m.Set("a", Validator{ETag: "1"})
	m.Set("b", Validator{ETag: "2"})

	m.Purge()

	if _, ok := m.Get("a"); ok {
		t.Error("purge should remove all keys")
	}
	if _, ok := m.Get("b"); ok {
		t.Error("purge should remove all keys")
	}
}
