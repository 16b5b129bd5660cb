// Package blogsync defines domain types and interfaces for the blogsync client.
// This package has no project imports -- it is the dependency root.
package blogsync

import (
	"context"
	"encoding/json"
	"net/url"
	"time"
)

// --- Transport ---

// Request describes a single API call relative to the configured base URL.
type Request struct {
	Method string
	Path   string     // e.g. "/posts/42/comments"
	Query  url.Values // nil = no query string
	Body   any        // JSON-encoded when non-nil; encoded again on replay

	// SkipReauth exempts the call from refresh-and-retry handling
	// (refresh itself, login, signup, logout).
	SkipReauth bool
}

// Doer issues a request and returns the raw JSON payload or an error.
// Implementations: transport.HTTP, reauth.Reauthenticator, testutil.FakeDoer.
type Doer interface {
	Do(ctx context.Context, req Request) (json.RawMessage, error)
}

// DoerFunc adapts a function to the Doer interface.
type DoerFunc func(ctx context.Context, req Request) (json.RawMessage, error)

// Do calls f(ctx, req).
func (f DoerFunc) Do(ctx context.Context, req Request) (json.RawMessage, error) { return f(ctx, req) }

// --- Blog resources ---

// User is the public projection of an account.
type User struct {
	ID       string `json:"_id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
	Bio      string `json:"bio,omitempty"`
}

// Profile is a user with follow counters as seen by the current session.
type Profile struct {
	User
	PostsCount     int  `json:"postsCount"`
	FollowersCount int  `json:"followersCount"`
	FollowingCount int  `json:"followingCount"`
	IsFollowing    bool `json:"isFollowing"`
}

// Post is a top-level blog entry.
type Post struct {
	ID            string    `json:"_id"`
	Author        User      `json:"author"`
	Content       string    `json:"content"`
	Image         string    `json:"image,omitempty"`
	Likes         int       `json:"likes"`
	IsLiked       bool      `json:"isLiked"`
	CommentsCount int       `json:"commentsCount"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Comment belongs to a post.
type Comment struct {
	ID           string    `json:"_id"`
	PostID       string    `json:"postId"`
	Author       User      `json:"author"`
	Content      string    `json:"content"`
	Likes        int       `json:"likes"`
	IsLiked      bool      `json:"isLiked"`
	RepliesCount int       `json:"repliesCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Reply belongs to a comment.
type Reply struct {
	ID        string    `json:"_id"`
	CommentID string    `json:"commentId"`
	Author    User      `json:"author"`
	Content   string    `json:"content"`
	Likes     int       `json:"likes"`
	IsLiked   bool      `json:"isLiked"`
	CreatedAt time.Time `json:"createdAt"`
}

// Page is one page of a list endpoint. Older endpoints put the items under
// "message" instead of "items"; both decode into Items.
type Page[T any] struct {
	Items   []T  `json:"items"`
	HasMore bool `json:"hasMore"`
}

// UnmarshalJSON accepts both the "items" and the legacy "message" envelope.
func (p *Page[T]) UnmarshalJSON(data []byte) error {
	var raw struct {
		Items   []T  `json:"items"`
		Message []T  `json:"message"`
		HasMore bool `json:"hasMore"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.Items = raw.Items
	if p.Items == nil {
		p.Items = raw.Message
	}
	p.HasMore = raw.HasMore
	return nil
}

// MutationResult is the minimal echo returned by mutation endpoints.
type MutationResult struct {
	ID      string `json:"_id,omitempty"`
	Message string `json:"message,omitempty"`
}

// --- Context keys ---

type contextKey int

const ctxKeyRequestID contextKey = 0

// RequestIDFromContext extracts the request ID from context.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// ContextWithRequestID returns a context carrying the given request ID.
// The transport reuses it for X-Request-Id instead of generating one.
func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}
