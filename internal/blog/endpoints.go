package blog

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	blogsync "github.com/eugener/blogsync/internal"
	"github.com/eugener/blogsync/internal/api"
	"github.com/eugener/blogsync/internal/jsonedit"
	"github.com/eugener/blogsync/internal/store"
)

// Tag types.
const (
	TypePost    = "Post"
	TypeComment = "Comment"
	TypeReply   = "Reply"
	TypeUser    = "User"
	TypeFollow  = "Follow"
	TypeSession = "Session"
)

// SessionMe tags the current-user query.
var SessionMe = store.ItemTag(TypeSession, "ME")

// IDArgs addresses a single entity.
type IDArgs struct {
	ID string `json:"id"`
}

// ListArgs addresses one page of a list, optionally scoped to a parent entity.
type ListArgs struct {
	ParentID string `json:"parentId,omitempty"`
	Page     int    `json:"page"`
	Limit    int    `json:"limit"`
}

func (a ListArgs) query() url.Values {
	return url.Values{
		"page":  {strconv.Itoa(a.Page)},
		"limit": {strconv.Itoa(a.Limit)},
	}
}

// LoginArgs are login credentials.
type LoginArgs struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupArgs create an account.
type SignupArgs struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

// CreatePostArgs create a post. AuthorID only selects the profile to refresh.
type CreatePostArgs struct {
	AuthorID string `json:"-"`
	Content  string `json:"content"`
	Image    string `json:"image,omitempty"`
}

// UpdatePostArgs replace a post's content.
type UpdatePostArgs struct {
	ID      string `json:"-"`
	Content string `json:"content"`
}

// CommentArgs add a comment to a post.
type CommentArgs struct {
	PostID  string `json:"-"`
	Content string `json:"content"`
}

// DeleteCommentArgs remove a comment from a post.
type DeleteCommentArgs struct {
	ID     string
	PostID string
}

// ReplyArgs add a reply to a comment.
type ReplyArgs struct {
	CommentID string `json:"-"`
	Content   string `json:"content"`
}

// DeleteReplyArgs remove a reply from a comment.
type DeleteReplyArgs struct {
	ID        string
	CommentID string
}

// UpdateProfileArgs change the current user's profile. Nil fields are kept.
type UpdateProfileArgs struct {
	UserID string  `json:"-"`
	Name   *string `json:"name,omitempty"`
	Bio    *string `json:"bio,omitempty"`
	Avatar *string `json:"avatar,omitempty"`
}

func (a UpdateProfileArgs) fields() map[string]any {
	m := make(map[string]any, 3)
	if a.Name != nil {
		m["name"] = *a.Name
	}
	if a.Bio != nil {
		m["bio"] = *a.Bio
	}
	if a.Avatar != nil {
		m["avatar"] = *a.Avatar
	}
	return m
}

func get(path string) blogsync.Request {
	return blogsync.Request{Method: http.MethodGet, Path: path}
}

func send(method, path string, body any) blogsync.Request {
	return blogsync.Request{Method: method, Path: path, Body: body}
}

func seg(id string) string { return url.PathEscape(id) }

// itemTags tags every entity in data with typ, followed by extra.
func itemTags(typ string, data json.RawMessage, extra ...store.Tag) []store.Tag {
	ids := jsonedit.IDs(data)
	tags := make([]store.Tag, 0, len(ids)+len(extra))
	for _, id := range ids {
		tags = append(tags, store.ItemTag(typ, id))
	}
	return append(tags, extra...)
}

// --- queries ---

var GetPosts = api.QueryDef[ListArgs]{
	Name: "getPosts",
	Request: func(a ListArgs) blogsync.Request {
		r := get("/posts")
		r.Query = a.query()
		return r
	},
	ProvidesTags: func(_ ListArgs, data json.RawMessage) []store.Tag {
		return itemTags(TypePost, data, store.ListTag(TypePost))
	},
}

var GetPost = api.QueryDef[IDArgs]{
	Name:    "getPost",
	Request: func(a IDArgs) blogsync.Request { return get("/posts/" + seg(a.ID)) },
	ProvidesTags: func(a IDArgs, _ json.RawMessage) []store.Tag {
		return []store.Tag{store.ItemTag(TypePost, a.ID)}
	},
}

var GetUserPosts = api.QueryDef[ListArgs]{
	Name: "getUserPosts",
	Request: func(a ListArgs) blogsync.Request {
		r := get("/users/" + seg(a.ParentID) + "/posts")
		r.Query = a.query()
		return r
	},
	ProvidesTags: func(a ListArgs, data json.RawMessage) []store.Tag {
		return itemTags(TypePost, data, store.ListTag(TypePost), store.ScopedListTag(TypePost, a.ParentID))
	},
}

var GetComments = api.QueryDef[ListArgs]{
	Name: "getComments",
	Request: func(a ListArgs) blogsync.Request {
		r := get("/posts/" + seg(a.ParentID) + "/comments")
		r.Query = a.query()
		return r
	},
	ProvidesTags: func(a ListArgs, data json.RawMessage) []store.Tag {
		return itemTags(TypeComment, data, store.ScopedListTag(TypeComment, a.ParentID))
	},
}

var GetReplies = api.QueryDef[ListArgs]{
	Name: "getReplies",
	Request: func(a ListArgs) blogsync.Request {
		r := get("/comments/" + seg(a.ParentID) + "/replies")
		r.Query = a.query()
		return r
	},
	ProvidesTags: func(a ListArgs, data json.RawMessage) []store.Tag {
		return itemTags(TypeReply, data, store.ScopedListTag(TypeReply, a.ParentID))
	},
}

var GetProfile = api.QueryDef[IDArgs]{
	Name:    "getProfile",
	Request: func(a IDArgs) blogsync.Request { return get("/users/" + seg(a.ID)) },
	ProvidesTags: func(a IDArgs, _ json.RawMessage) []store.Tag {
		return []store.Tag{store.ItemTag(TypeUser, a.ID)}
	},
}

var GetFollowers = api.QueryDef[ListArgs]{
	Name: "getFollowers",
	Request: func(a ListArgs) blogsync.Request {
		r := get("/users/" + seg(a.ParentID) + "/followers")
		r.Query = a.query()
		return r
	},
	ProvidesTags: func(a ListArgs, data json.RawMessage) []store.Tag {
		return itemTags(TypeUser, data, store.ScopedListTag(TypeFollow, a.ParentID))
	},
}

var GetFollowing = api.QueryDef[ListArgs]{
	Name: "getFollowing",
	Request: func(a ListArgs) blogsync.Request {
		r := get("/users/" + seg(a.ParentID) + "/following")
		r.Query = a.query()
		return r
	},
	ProvidesTags: func(a ListArgs, data json.RawMessage) []store.Tag {
		return itemTags(TypeUser, data, store.ScopedListTag(TypeFollow, a.ParentID))
	},
}

var GetMe = api.QueryDef[api.NoArgs]{
	Name:    "getMe",
	Request: func(api.NoArgs) blogsync.Request { return get("/auth/me") },
	ProvidesTags: func(api.NoArgs, json.RawMessage) []store.Tag {
		return []store.Tag{SessionMe}
	},
}

// --- mutations ---

var Login = api.MutationDef[LoginArgs]{
	Name: "login",
	Request: func(a LoginArgs) blogsync.Request {
		r := send(http.MethodPost, "/auth/login", a)
		r.SkipReauth = true
		return r
	},
	Invalidates: func(LoginArgs, json.RawMessage) []store.Tag { return []store.Tag{SessionMe} },
}

var Signup = api.MutationDef[SignupArgs]{
	Name: "signup",
	Request: func(a SignupArgs) blogsync.Request {
		r := send(http.MethodPost, "/auth/signup", a)
		r.SkipReauth = true
		return r
	},
	Invalidates: func(SignupArgs, json.RawMessage) []store.Tag { return []store.Tag{SessionMe} },
}

// Logout has no Settled hook here; the Client installs one that ends the session.
var Logout = api.MutationDef[api.NoArgs]{
	Name: "logout",
	Request: func(api.NoArgs) blogsync.Request {
		r := send(http.MethodPost, "/auth/logout", nil)
		r.SkipReauth = true
		return r
	},
}

var CreatePost = api.MutationDef[CreatePostArgs]{
	Name:    "createPost",
	Request: func(a CreatePostArgs) blogsync.Request { return send(http.MethodPost, "/posts", a) },
	Invalidates: func(a CreatePostArgs, _ json.RawMessage) []store.Tag {
		tags := []store.Tag{store.ListTag(TypePost)}
		if a.AuthorID != "" {
			tags = append(tags, store.ItemTag(TypeUser, a.AuthorID))
		}
		return tags
	},
}

var UpdatePost = api.MutationDef[UpdatePostArgs]{
	Name:    "updatePost",
	Request: func(a UpdatePostArgs) blogsync.Request { return send(http.MethodPatch, "/posts/"+seg(a.ID), a) },
	Optimistic: func(a UpdatePostArgs) []store.Target {
		return []store.Target{store.TagTarget(store.ItemTag(TypePost, a.ID),
			jsonedit.Entity(a.ID, jsonedit.Set("content", a.Content)))}
	},
	Invalidates: func(a UpdatePostArgs, _ json.RawMessage) []store.Tag {
		return []store.Tag{store.ItemTag(TypePost, a.ID)}
	},
}

var DeletePost = api.MutationDef[IDArgs]{
	Name:    "deletePost",
	Request: func(a IDArgs) blogsync.Request { return send(http.MethodDelete, "/posts/"+seg(a.ID), nil) },
	Optimistic: func(a IDArgs) []store.Target {
		return []store.Target{store.TagTarget(store.ItemTag(TypePost, a.ID), jsonedit.Remove(a.ID))}
	},
	Invalidates: func(a IDArgs, _ json.RawMessage) []store.Tag {
		return []store.Tag{store.ListTag(TypePost), store.ItemTag(TypePost, a.ID)}
	},
}

// likeToggle builds the like/unlike pair of a likeable entity type.
func likeToggle(typ, name, collection string, like bool) api.MutationDef[IDArgs] {
	method, delta := http.MethodPost, 1
	if !like {
		method, delta = http.MethodDelete, -1
	}
	return api.MutationDef[IDArgs]{
		Name: name,
		Request: func(a IDArgs) blogsync.Request {
			return send(method, "/"+collection+"/"+seg(a.ID)+"/like", nil)
		},
		Optimistic: func(a IDArgs) []store.Target {
			return []store.Target{store.TagTarget(store.ItemTag(typ, a.ID),
				jsonedit.Entity(a.ID, jsonedit.Set("isLiked", like), jsonedit.AddInt("likes", delta)))}
		},
		Invalidates: func(a IDArgs, _ json.RawMessage) []store.Tag {
			return []store.Tag{store.ItemTag(typ, a.ID)}
		},
	}
}

var (
	LikePost      = likeToggle(TypePost, "likePost", "posts", true)
	UnlikePost    = likeToggle(TypePost, "unlikePost", "posts", false)
	LikeComment   = likeToggle(TypeComment, "likeComment", "comments", true)
	UnlikeComment = likeToggle(TypeComment, "unlikeComment", "comments", false)
	LikeReply     = likeToggle(TypeReply, "likeReply", "replies", true)
	UnlikeReply   = likeToggle(TypeReply, "unlikeReply", "replies", false)
)

var AddComment = api.MutationDef[CommentArgs]{
	Name: "addComment",
	Request: func(a CommentArgs) blogsync.Request {
		return send(http.MethodPost, "/posts/"+seg(a.PostID)+"/comments", a)
	},
	Optimistic: func(a CommentArgs) []store.Target {
		return []store.Target{store.TagTarget(store.ItemTag(TypePost, a.PostID),
			jsonedit.Entity(a.PostID, jsonedit.AddInt("commentsCount", 1)))}
	},
	Invalidates: func(a CommentArgs, _ json.RawMessage) []store.Tag {
		return []store.Tag{store.ScopedListTag(TypeComment, a.PostID)}
	},
}

var DeleteComment = api.MutationDef[DeleteCommentArgs]{
	Name: "deleteComment",
	Request: func(a DeleteCommentArgs) blogsync.Request {
		return send(http.MethodDelete, "/comments/"+seg(a.ID), nil)
	},
	Optimistic: func(a DeleteCommentArgs) []store.Target {
		return []store.Target{
			store.TagTarget(store.ItemTag(TypeComment, a.ID), jsonedit.Remove(a.ID)),
			store.TagTarget(store.ItemTag(TypePost, a.PostID),
				jsonedit.Entity(a.PostID, jsonedit.AddInt("commentsCount", -1))),
		}
	},
	Invalidates: func(a DeleteCommentArgs, _ json.RawMessage) []store.Tag {
		return []store.Tag{store.ScopedListTag(TypeComment, a.PostID), store.ItemTag(TypePost, a.PostID)}
	},
}

var AddReply = api.MutationDef[ReplyArgs]{
	Name: "addReply",
	Request: func(a ReplyArgs) blogsync.Request {
		return send(http.MethodPost, "/comments/"+seg(a.CommentID)+"/replies", a)
	},
	Optimistic: func(a ReplyArgs) []store.Target {
		return []store.Target{store.TagTarget(store.ItemTag(TypeComment, a.CommentID),
			jsonedit.Entity(a.CommentID, jsonedit.AddInt("repliesCount", 1)))}
	},
	Invalidates: func(a ReplyArgs, _ json.RawMessage) []store.Tag {
		return []store.Tag{store.ScopedListTag(TypeReply, a.CommentID)}
	},
}

var DeleteReply = api.MutationDef[DeleteReplyArgs]{
	Name: "deleteReply",
	Request: func(a DeleteReplyArgs) blogsync.Request {
		return send(http.MethodDelete, "/replies/"+seg(a.ID), nil)
	},
	Optimistic: func(a DeleteReplyArgs) []store.Target {
		return []store.Target{
			store.TagTarget(store.ItemTag(TypeReply, a.ID), jsonedit.Remove(a.ID)),
			store.TagTarget(store.ItemTag(TypeComment, a.CommentID),
				jsonedit.Entity(a.CommentID, jsonedit.AddInt("repliesCount", -1))),
		}
	},
	Invalidates: func(a DeleteReplyArgs, _ json.RawMessage) []store.Tag {
		return []store.Tag{store.ScopedListTag(TypeReply, a.CommentID), store.ItemTag(TypeComment, a.CommentID)}
	},
}

func followToggle(name string, follow bool) api.MutationDef[IDArgs] {
	method, delta := http.MethodPost, 1
	if !follow {
		method, delta = http.MethodDelete, -1
	}
	return api.MutationDef[IDArgs]{
		Name: name,
		Request: func(a IDArgs) blogsync.Request {
			return send(method, "/users/"+seg(a.ID)+"/follow", nil)
		},
		// Follower lists also carry User tags; only the profile has the counters.
		Optimistic: func(a IDArgs) []store.Target {
			return []store.Target{store.TagTarget(store.ItemTag(TypeUser, a.ID),
				jsonedit.Entity(a.ID, jsonedit.Set("isFollowing", follow), jsonedit.AddInt("followersCount", delta)),
				GetProfile.Name)}
		},
		Invalidates: func(a IDArgs, _ json.RawMessage) []store.Tag {
			return []store.Tag{
				store.ScopedListTag(TypeFollow, a.ID),
				store.ItemTag(TypeUser, a.ID),
				store.ListTag(TypePost),
			}
		},
	}
}

var (
	Follow   = followToggle("follow", true)
	Unfollow = followToggle("unfollow", false)
)

var UpdateProfile = api.MutationDef[UpdateProfileArgs]{
	Name:    "updateProfile",
	Request: func(a UpdateProfileArgs) blogsync.Request { return send(http.MethodPatch, "/users/me", a) },
	Optimistic: func(a UpdateProfileArgs) []store.Target {
		edit := jsonedit.Entity(a.UserID, jsonedit.SetAll(a.fields()))
		return []store.Target{
			store.TagTarget(store.ItemTag(TypeUser, a.UserID), edit),
			store.TagTarget(SessionMe, edit),
		}
	},
	Invalidates: func(a UpdateProfileArgs, _ json.RawMessage) []store.Tag {
		return []store.Tag{store.ItemTag(TypeUser, a.UserID), SessionMe}
	},
}
