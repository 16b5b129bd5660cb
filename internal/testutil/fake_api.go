package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	blogsync "github.com/eugener/blogsync/internal"
)

const (
	accessCookie  = "accessToken"
	refreshCookie = "refreshToken"
)

// FakeAPI is an in-memory blog API served over httptest. Access and refresh
// credentials are signed JWTs in http-only cookies; GET responses carry ETags.
type FakeAPI struct {
	srv    *httptest.Server
	secret []byte

	mu         sync.Mutex
	accessGen  int
	refreshGen int
	users      map[string]*fakeUser
	posts      []*fakePost // newest first
	comments   []*fakeComment
	replies    []*fakeReply
	follows    map[string]map[string]bool // follower -> followees
	calls      map[string]int             // "METHOD /path"
	failures   map[string]int             // "METHOD /path" -> status, one shot
}

type fakeUser struct {
	id, username, email, password, name, bio, avatar string
}

type fakePost struct {
	id, authorID, content, image string
	createdAt                    time.Time
	likes                        map[string]bool
}

type fakeComment struct {
	id, postID, authorID, content string
	createdAt                     time.Time
	likes                         map[string]bool
}

type fakeReply struct {
	id, commentID, authorID, content string
	createdAt                        time.Time
	likes                            map[string]bool
}

type tokenClaims struct {
	Kind string `json:"kind"`
	Gen  int    `json:"gen"`
	jwt.RegisteredClaims
}

type ctxKeyUser struct{}

// NewFakeAPI starts a fake API server that is closed when the test ends.
func NewFakeAPI(t testing.TB) *FakeAPI {
	t.Helper()
	f := &FakeAPI{
		secret:   []byte(uuid.NewString()),
		users:    make(map[string]*fakeUser),
		follows:  make(map[string]map[string]bool),
		calls:    make(map[string]int),
		failures: make(map[string]int),
	}
	f.srv = httptest.NewServer(f.routes())
	t.Cleanup(f.srv.Close)
	return f
}

// URL returns the API base URL.
func (f *FakeAPI) URL() string { return f.srv.URL }

// AddUser registers an account.
func (f *FakeAPI) AddUser(username, email, password string) blogsync.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := &fakeUser{id: uuid.NewString(), username: username, email: email, password: password, name: username}
	f.users[u.id] = u
	return f.userLocked(u)
}

// AddPost creates a post by authorID and returns its id.
func (f *FakeAPI) AddPost(authorID, content string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addPostLocked(authorID, content, "")
}

// AddComment creates a comment on postID and returns its id.
func (f *FakeAPI) AddComment(postID, authorID, content string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addCommentLocked(postID, authorID, content)
}

// ExpireAccessTokens invalidates every issued access token.
func (f *FakeAPI) ExpireAccessTokens() {
	f.mu.Lock()
	f.accessGen++
	f.mu.Unlock()
}

// RevokeRefreshTokens invalidates every issued refresh token.
func (f *FakeAPI) RevokeRefreshTokens() {
	f.mu.Lock()
	f.refreshGen++
	f.mu.Unlock()
}

// FailNext makes the next request to method+path answer with status.
func (f *FakeAPI) FailNext(method, path string, status int) {
	f.mu.Lock()
	f.failures[method+" "+path] = status
	f.mu.Unlock()
}

// Calls returns how many requests reached method+path.
func (f *FakeAPI) Calls(method, path string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method+" "+path]
}

// --- routing ---

func (f *FakeAPI) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(f.record)

	r.Post("/auth/login", f.handleLogin)
	r.Post("/auth/signup", f.handleSignup)
	r.Post("/auth/logout", f.handleLogout)
	r.Post("/auth/refresh", f.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(f.authenticate)

		r.Get("/auth/me", f.handleMe)

		r.Get("/posts", f.handleListPosts)
		r.Post("/posts", f.handleCreatePost)
		r.Get("/posts/{id}", f.handleGetPost)
		r.Patch("/posts/{id}", f.handleUpdatePost)
		r.Delete("/posts/{id}", f.handleDeletePost)
		r.Post("/posts/{id}/like", f.handleLikePost(true))
		r.Delete("/posts/{id}/like", f.handleLikePost(false))
		r.Get("/posts/{id}/comments", f.handleListComments)
		r.Post("/posts/{id}/comments", f.handleAddComment)

		r.Delete("/comments/{id}", f.handleDeleteComment)
		r.Post("/comments/{id}/like", f.handleLikeComment(true))
		r.Delete("/comments/{id}/like", f.handleLikeComment(false))
		r.Get("/comments/{id}/replies", f.handleListReplies)
		r.Post("/comments/{id}/replies", f.handleAddReply)

		r.Delete("/replies/{id}", f.handleDeleteReply)
		r.Post("/replies/{id}/like", f.handleLikeReply(true))
		r.Delete("/replies/{id}/like", f.handleLikeReply(false))

		r.Patch("/users/me", f.handleUpdateProfile)
		r.Get("/users/{id}", f.handleGetProfile)
		r.Get("/users/{id}/posts", f.handleUserPosts)
		r.Get("/users/{id}/followers", f.handleFollowers)
		r.Get("/users/{id}/following", f.handleFollowing)
		r.Post("/users/{id}/follow", f.handleFollow(true))
		r.Delete("/users/{id}/follow", f.handleFollow(false))
	})
	return r
}

// record counts requests and serves injected failures.
func (f *FakeAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		k := r.Method + " " + r.URL.Path
		f.mu.Lock()
		f.calls[k]++
		status, fail := f.failures[k]
		delete(f.failures, k)
		f.mu.Unlock()
		if fail {
			writeJSON(w, r, status, map[string]string{"message": http.StatusText(status)})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(accessCookie)
		if err != nil {
			writeJSON(w, r, http.StatusUnauthorized, map[string]string{"message": "access token missing"})
			return
		}
		claims, err := f.parseToken(c.Value, "access")
		if err != nil {
			writeJSON(w, r, http.StatusUnauthorized, map[string]string{"message": err.Error()})
			return
		}
		ctx := context.WithValue(r.Context(), ctxKeyUser{}, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// --- tokens ---

func (f *FakeAPI) issue(w http.ResponseWriter, userID string, withRefresh bool) {
	f.mu.Lock()
	accessGen, refreshGen := f.accessGen, f.refreshGen
	f.mu.Unlock()

	access, _ := f.sign(userID, "access", accessGen, 15*time.Minute)
	http.SetCookie(w, &http.Cookie{Name: accessCookie, Value: access, Path: "/", HttpOnly: true})
	if withRefresh {
		refresh, _ := f.sign(userID, "refresh", refreshGen, 7*24*time.Hour)
		http.SetCookie(w, &http.Cookie{Name: refreshCookie, Value: refresh, Path: "/", HttpOnly: true})
	}
}

func (f *FakeAPI) sign(userID, kind string, gen int, ttl time.Duration) (string, error) {
	now := time.Now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Kind: kind,
		Gen:  gen,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	})
	return tok.SignedString(f.secret)
}

var errTokenRevoked = errors.New("token revoked")

func (f *FakeAPI) parseToken(raw, kind string) (*tokenClaims, error) {
	claims := &tokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return f.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	gen := f.accessGen
	if kind == "refresh" {
		gen = f.refreshGen
	}
	if claims.Kind != kind || claims.Gen != gen {
		return nil, errTokenRevoked
	}
	if _, ok := f.users[claims.Subject]; !ok {
		return nil, errTokenRevoked
	}
	return claims, nil
}

// --- auth handlers ---

func (f *FakeAPI) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	f.mu.Lock()
	var found *fakeUser
	for _, u := range f.users {
		if u.email == body.Email && u.password == body.Password {
			found = u
			break
		}
	}
	var out blogsync.User
	if found != nil {
		out = f.userLocked(found)
	}
	f.mu.Unlock()
	if found == nil {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "invalid credentials"})
		return
	}
	f.issue(w, found.id, true)
	writeJSON(w, r, http.StatusOK, out)
}

func (f *FakeAPI) handleSignup(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Name     string `json:"name"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Username == "" || body.Email == "" || body.Password == "" {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "username, email and password are required"})
		return
	}
	f.mu.Lock()
	for _, u := range f.users {
		if u.email == body.Email {
			f.mu.Unlock()
			writeJSON(w, r, http.StatusConflict, map[string]string{"message": "email already registered"})
			return
		}
	}
	u := &fakeUser{id: uuid.NewString(), username: body.Username, email: body.Email, password: body.Password, name: body.Name}
	f.users[u.id] = u
	out := f.userLocked(u)
	f.mu.Unlock()

	f.issue(w, u.id, true)
	writeJSON(w, r, http.StatusCreated, out)
}

func (f *FakeAPI) handleLogout(w http.ResponseWriter, r *http.Request) {
	for _, name := range []string{accessCookie, refreshCookie} {
		http.SetCookie(w, &http.Cookie{Name: name, Value: "", Path: "/", MaxAge: -1, HttpOnly: true})
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}

func (f *FakeAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(refreshCookie)
	if err != nil {
		writeJSON(w, r, http.StatusUnauthorized, map[string]string{"message": "refresh token missing"})
		return
	}
	claims, err := f.parseToken(c.Value, "refresh")
	if err != nil {
		writeJSON(w, r, http.StatusUnauthorized, map[string]string{"message": err.Error()})
		return
	}
	f.issue(w, claims.Subject, false)
	writeJSON(w, r, http.StatusOK, map[string]string{"message": "refreshed"})
}

func (f *FakeAPI) handleMe(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	out := f.userLocked(f.users[currentUser(r)])
	f.mu.Unlock()
	writeJSON(w, r, http.StatusOK, out)
}

// --- posts ---

func (f *FakeAPI) handleListPosts(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writePostPage(w, r, f.posts)
}

func (f *FakeAPI) handleUserPosts(w http.ResponseWriter, r *http.Request) {
	author := chi.URLParam(r, "id")
	f.mu.Lock()
	defer f.mu.Unlock()
	var mine []*fakePost
	for _, p := range f.posts {
		if p.authorID == author {
			mine = append(mine, p)
		}
	}
	f.writePostPage(w, r, mine)
}

func (f *FakeAPI) writePostPage(w http.ResponseWriter, r *http.Request, posts []*fakePost) {
	me := currentUser(r)
	items, hasMore := pageOf(r, posts)
	out := blogsync.Page[blogsync.Post]{Items: make([]blogsync.Post, 0, len(items)), HasMore: hasMore}
	for _, p := range items {
		out.Items = append(out.Items, f.postLocked(p, me))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (f *FakeAPI) handleGetPost(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.findPostLocked(chi.URLParam(r, "id"))
	if p == nil {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "post not found"})
		return
	}
	writeJSON(w, r, http.StatusOK, f.postLocked(p, currentUser(r)))
}

func (f *FakeAPI) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
		Image   string `json:"image"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Content == "" {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "content is required"})
		return
	}
	f.mu.Lock()
	id := f.addPostLocked(currentUser(r), body.Content, body.Image)
	f.mu.Unlock()
	writeJSON(w, r, http.StatusCreated, blogsync.MutationResult{ID: id, Message: "post created"})
}

func (f *FakeAPI) handleUpdatePost(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.findPostLocked(chi.URLParam(r, "id"))
	switch {
	case p == nil:
		writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "post not found"})
	case p.authorID != currentUser(r):
		writeJSON(w, r, http.StatusForbidden, map[string]string{"message": "not your post"})
	default:
		p.content = body.Content
		writeJSON(w, r, http.StatusOK, blogsync.MutationResult{ID: p.id, Message: "post updated"})
	}
}

func (f *FakeAPI) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	p := f.findPostLocked(id)
	switch {
	case p == nil:
		writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "post not found"})
	case p.authorID != currentUser(r):
		writeJSON(w, r, http.StatusForbidden, map[string]string{"message": "not your post"})
	default:
		f.posts = slices.DeleteFunc(f.posts, func(p *fakePost) bool { return p.id == id })
		writeJSON(w, r, http.StatusOK, blogsync.MutationResult{ID: id, Message: "post deleted"})
	}
}

func (f *FakeAPI) handleLikePost(like bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := chi.URLParam(r, "id")
		p := f.findPostLocked(id)
		if p == nil {
			writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "post not found"})
			return
		}
		toggleLike(w, r, id, p.likes, like)
	}
}

// --- comments ---

func (f *FakeAPI) handleListComments(w http.ResponseWriter, r *http.Request) {
	postID := chi.URLParam(r, "id")
	me := currentUser(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*fakeComment
	for _, c := range f.comments {
		if c.postID == postID {
			list = append(list, c)
		}
	}
	items, hasMore := pageOf(r, list)
	out := make([]blogsync.Comment, 0, len(items))
	for _, c := range items {
		out = append(out, f.commentLocked(c, me))
	}
	// Comments use the legacy "message" envelope.
	writeJSON(w, r, http.StatusOK, map[string]any{"message": out, "hasMore": hasMore})
}

func (f *FakeAPI) handleAddComment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	postID := chi.URLParam(r, "id")
	if f.findPostLocked(postID) == nil {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "post not found"})
		return
	}
	id := f.addCommentLocked(postID, currentUser(r), body.Content)
	writeJSON(w, r, http.StatusCreated, blogsync.MutationResult{ID: id, Message: "comment added"})
}

func (f *FakeAPI) handleDeleteComment(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	c := f.findCommentLocked(id)
	if c == nil {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "comment not found"})
		return
	}
	f.comments = slices.DeleteFunc(f.comments, func(c *fakeComment) bool { return c.id == id })
	f.replies = slices.DeleteFunc(f.replies, func(rp *fakeReply) bool { return rp.commentID == id })
	writeJSON(w, r, http.StatusOK, blogsync.MutationResult{ID: id, Message: "comment deleted"})
}

func (f *FakeAPI) handleLikeComment(like bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := chi.URLParam(r, "id")
		c := f.findCommentLocked(id)
		if c == nil {
			writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "comment not found"})
			return
		}
		toggleLike(w, r, id, c.likes, like)
	}
}

// --- replies ---

func (f *FakeAPI) handleListReplies(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "id")
	me := currentUser(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*fakeReply
	for _, rp := range f.replies {
		if rp.commentID == commentID {
			list = append(list, rp)
		}
	}
	items, hasMore := pageOf(r, list)
	out := blogsync.Page[blogsync.Reply]{Items: make([]blogsync.Reply, 0, len(items)), HasMore: hasMore}
	for _, rp := range items {
		out.Items = append(out.Items, blogsync.Reply{
			ID:        rp.id,
			CommentID: rp.commentID,
			Author:    f.userLocked(f.users[rp.authorID]),
			Content:   rp.content,
			Likes:     len(rp.likes),
			IsLiked:   rp.likes[me],
			CreatedAt: rp.createdAt,
		})
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (f *FakeAPI) handleAddReply(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Content string `json:"content"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	commentID := chi.URLParam(r, "id")
	if f.findCommentLocked(commentID) == nil {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "comment not found"})
		return
	}
	rp := &fakeReply{
		id:        uuid.NewString(),
		commentID: commentID,
		authorID:  currentUser(r),
		content:   body.Content,
		createdAt: time.Now().UTC(),
		likes:     make(map[string]bool),
	}
	f.replies = append([]*fakeReply{rp}, f.replies...)
	writeJSON(w, r, http.StatusCreated, blogsync.MutationResult{ID: rp.id, Message: "reply added"})
}

func (f *FakeAPI) handleDeleteReply(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := chi.URLParam(r, "id")
	if f.findReplyLocked(id) == nil {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "reply not found"})
		return
	}
	f.replies = slices.DeleteFunc(f.replies, func(rp *fakeReply) bool { return rp.id == id })
	writeJSON(w, r, http.StatusOK, blogsync.MutationResult{ID: id, Message: "reply deleted"})
}

func (f *FakeAPI) handleLikeReply(like bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := chi.URLParam(r, "id")
		rp := f.findReplyLocked(id)
		if rp == nil {
			writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "reply not found"})
			return
		}
		toggleLike(w, r, id, rp.likes, like)
	}
}

// --- users ---

func (f *FakeAPI) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[chi.URLParam(r, "id")]
	if u == nil {
		writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "user not found"})
		return
	}
	posts := 0
	for _, p := range f.posts {
		if p.authorID == u.id {
			posts++
		}
	}
	followers := 0
	for _, set := range f.follows {
		if set[u.id] {
			followers++
		}
	}
	writeJSON(w, r, http.StatusOK, blogsync.Profile{
		User:           f.userLocked(u),
		PostsCount:     posts,
		FollowersCount: followers,
		FollowingCount: len(f.follows[u.id]),
		IsFollowing:    f.follows[currentUser(r)][u.id],
	})
}

func (f *FakeAPI) handleFollowers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*fakeUser
	for follower, set := range f.follows {
		if set[id] {
			list = append(list, f.users[follower])
		}
	}
	f.writeUserPage(w, r, list)
}

func (f *FakeAPI) handleFollowing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []*fakeUser
	for followee := range f.follows[id] {
		list = append(list, f.users[followee])
	}
	f.writeUserPage(w, r, list)
}

func (f *FakeAPI) writeUserPage(w http.ResponseWriter, r *http.Request, list []*fakeUser) {
	slices.SortFunc(list, func(a, b *fakeUser) int {
		switch {
		case a.username < b.username:
			return -1
		case a.username > b.username:
			return 1
		}
		return 0
	})
	items, hasMore := pageOf(r, list)
	out := blogsync.Page[blogsync.User]{Items: make([]blogsync.User, 0, len(items)), HasMore: hasMore}
	for _, u := range items {
		out.Items = append(out.Items, f.userLocked(u))
	}
	writeJSON(w, r, http.StatusOK, out)
}

func (f *FakeAPI) handleFollow(follow bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		target := chi.URLParam(r, "id")
		me := currentUser(r)
		if f.users[target] == nil {
			writeJSON(w, r, http.StatusNotFound, map[string]string{"message": "user not found"})
			return
		}
		if target == me {
			writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "cannot follow yourself"})
			return
		}
		set := f.follows[me]
		if set == nil {
			set = make(map[string]bool)
			f.follows[me] = set
		}
		if set[target] == follow {
			writeJSON(w, r, http.StatusConflict, map[string]string{"message": "follow state unchanged"})
			return
		}
		if follow {
			set[target] = true
		} else {
			delete(set, target)
		}
		writeJSON(w, r, http.StatusOK, blogsync.MutationResult{ID: target})
	}
}

func (f *FakeAPI) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name   *string `json:"name"`
		Bio    *string `json:"bio"`
		Avatar *string `json:"avatar"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u := f.users[currentUser(r)]
	if body.Name != nil {
		u.name = *body.Name
	}
	if body.Bio != nil {
		u.bio = *body.Bio
	}
	if body.Avatar != nil {
		u.avatar = *body.Avatar
	}
	writeJSON(w, r, http.StatusOK, blogsync.MutationResult{ID: u.id, Message: "profile updated"})
}

// --- helpers ---

func (f *FakeAPI) userLocked(u *fakeUser) blogsync.User {
	if u == nil {
		return blogsync.User{}
	}
	return blogsync.User{ID: u.id, Username: u.username, Name: u.name, Avatar: u.avatar, Bio: u.bio}
}

func (f *FakeAPI) postLocked(p *fakePost, me string) blogsync.Post {
	comments := 0
	for _, c := range f.comments {
		if c.postID == p.id {
			comments++
		}
	}
	return blogsync.Post{
		ID:            p.id,
		Author:        f.userLocked(f.users[p.authorID]),
		Content:       p.content,
		Image:         p.image,
		Likes:         len(p.likes),
		IsLiked:       p.likes[me],
		CommentsCount: comments,
		CreatedAt:     p.createdAt,
	}
}

func (f *FakeAPI) commentLocked(c *fakeComment, me string) blogsync.Comment {
	replies := 0
	for _, rp := range f.replies {
		if rp.commentID == c.id {
			replies++
		}
	}
	return blogsync.Comment{
		ID:           c.id,
		PostID:       c.postID,
		Author:       f.userLocked(f.users[c.authorID]),
		Content:      c.content,
		Likes:        len(c.likes),
		IsLiked:      c.likes[me],
		RepliesCount: replies,
		CreatedAt:    c.createdAt,
	}
}

func (f *FakeAPI) addPostLocked(authorID, content, image string) string {
	p := &fakePost{
		id:        uuid.NewString(),
		authorID:  authorID,
		content:   content,
		image:     image,
		createdAt: time.Now().UTC(),
		likes:     make(map[string]bool),
	}
	f.posts = append([]*fakePost{p}, f.posts...)
	return p.id
}

func (f *FakeAPI) addCommentLocked(postID, authorID, content string) string {
	c := &fakeComment{
		id:        uuid.NewString(),
		postID:    postID,
		authorID:  authorID,
		content:   content,
		createdAt: time.Now().UTC(),
		likes:     make(map[string]bool),
	}
	f.comments = append([]*fakeComment{c}, f.comments...)
	return c.id
}

func (f *FakeAPI) findPostLocked(id string) *fakePost {
	for _, p := range f.posts {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (f *FakeAPI) findCommentLocked(id string) *fakeComment {
	for _, c := range f.comments {
		if c.id == id {
			return c
		}
	}
	return nil
}

func (f *FakeAPI) findReplyLocked(id string) *fakeReply {
	for _, rp := range f.replies {
		if rp.id == id {
			return rp
		}
	}
	return nil
}

func toggleLike(w http.ResponseWriter, r *http.Request, id string, likes map[string]bool, like bool) {
	me := currentUser(r)
	if likes[me] == like {
		writeJSON(w, r, http.StatusConflict, map[string]string{"message": "like state unchanged"})
		return
	}
	if like {
		likes[me] = true
	} else {
		delete(likes, me)
	}
	writeJSON(w, r, http.StatusOK, blogsync.MutationResult{ID: id})
}

func currentUser(r *http.Request) string {
	id, _ := r.Context().Value(ctxKeyUser{}).(string)
	return id
}

// pageOf slices items by the page and limit query parameters (defaults 1 and 10).
func pageOf[T any](r *http.Request, items []T) ([]T, bool) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	start := (page - 1) * limit
	if start >= len(items) {
		return nil, false
	}
	end := min(start+limit, len(items))
	return items[start:end], end < len(items)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, r, http.StatusBadRequest, map[string]string{"message": "invalid JSON body"})
		return false
	}
	return true
}

// writeJSON writes v as JSON. Successful GET responses carry a strong ETag
// and honor If-None-Match.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if r.Method == http.MethodGet && status == http.StatusOK {
		sum := sha256.Sum256(body)
		etag := `"` + hex.EncodeToString(sum[:8]) + `"`
		w.Header().Set("ETag", etag)
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}
	w.WriteHeader(status)
	w.Write(body)
}
