// Package blog is the typed surface of the blog API: endpoint definitions,
// a Client with one method per operation, and paginated Feeds.
package blog

import (
	"context"
	"encoding/json"

	blogsync "github.com/eugener/blogsync/internal"
	"github.com/eugener/blogsync/internal/api"
)

// DefaultPageLimit is the page size used when Options.PageLimit is zero.
const DefaultPageLimit = 10

// SessionEnder ends the client session. Implemented by reauth.Reauthenticator.
type SessionEnder interface {
	EndSession(ctx context.Context)
}

// Options configures a Client.
type Options struct {
	PageLimit int
	// Session is ended after logout, in addition to the store reset.
	Session SessionEnder
}

// Client exposes every blog operation on top of an api.Client.
type Client struct {
	api     *api.Client
	limit   int
	session SessionEnder
}

// New creates a Client.
func New(c *api.Client, opts Options) *Client {
	if opts.PageLimit <= 0 {
		opts.PageLimit = DefaultPageLimit
	}
	return &Client{api: c, limit: opts.PageLimit, session: opts.Session}
}

// API returns the underlying api.Client.
func (c *Client) API() *api.Client { return c.api }

func (c *Client) list(parentID string, page int) ListArgs {
	return ListArgs{ParentID: parentID, Page: max(page, 1), Limit: c.limit}
}

// --- session ---

func (c *Client) Login(ctx context.Context, email, password string) (blogsync.User, error) {
	return api.Mutate[blogsync.User](ctx, c.api, Login, LoginArgs{Email: email, Password: password})
}

func (c *Client) Signup(ctx context.Context, args SignupArgs) (blogsync.User, error) {
	return api.Mutate[blogsync.User](ctx, c.api, Signup, args)
}

// Logout ends the session whether or not the server call succeeds.
func (c *Client) Logout(ctx context.Context) error {
	m := Logout
	m.Settled = func(ac *api.Client, _ api.NoArgs, _ error) {
		ac.Reset()
		if c.session != nil {
			c.session.EndSession(ctx)
		}
	}
	_, err := api.Mutate[json.RawMessage](ctx, c.api, m, api.NoArgs{})
	return err
}

func (c *Client) Me(ctx context.Context) (blogsync.User, error) {
	return api.Query[blogsync.User](ctx, c.api, GetMe, api.NoArgs{})
}

// --- posts ---

func (c *Client) Posts(ctx context.Context, page int) (blogsync.Page[blogsync.Post], error) {
	return api.Query[blogsync.Page[blogsync.Post]](ctx, c.api, GetPosts, c.list("", page))
}

func (c *Client) Post(ctx context.Context, id string) (blogsync.Post, error) {
	return api.Query[blogsync.Post](ctx, c.api, GetPost, IDArgs{ID: id})
}

func (c *Client) UserPosts(ctx context.Context, userID string, page int) (blogsync.Page[blogsync.Post], error) {
	return api.Query[blogsync.Page[blogsync.Post]](ctx, c.api, GetUserPosts, c.list(userID, page))
}

func (c *Client) CreatePost(ctx context.Context, args CreatePostArgs) (blogsync.MutationResult, error) {
	return api.Mutate[blogsync.MutationResult](ctx, c.api, CreatePost, args)
}

func (c *Client) UpdatePost(ctx context.Context, id, content string) (blogsync.MutationResult, error) {
	return api.Mutate[blogsync.MutationResult](ctx, c.api, UpdatePost, UpdatePostArgs{ID: id, Content: content})
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	_, err := api.Mutate[blogsync.MutationResult](ctx, c.api, DeletePost, IDArgs{ID: id})
	return err
}

func (c *Client) LikePost(ctx context.Context, id string) error {
	return c.toggle(ctx, LikePost, id)
}

func (c *Client) UnlikePost(ctx context.Context, id string) error {
	return c.toggle(ctx, UnlikePost, id)
}

// --- comments and replies ---

func (c *Client) Comments(ctx context.Context, postID string, page int) (blogsync.Page[blogsync.Comment], error) {
	return api.Query[blogsync.Page[blogsync.Comment]](ctx, c.api, GetComments, c.list(postID, page))
}

func (c *Client) AddComment(ctx context.Context, postID, content string) (blogsync.MutationResult, error) {
	return api.Mutate[blogsync.MutationResult](ctx, c.api, AddComment, CommentArgs{PostID: postID, Content: content})
}

func (c *Client) DeleteComment(ctx context.Context, postID, id string) error {
	_, err := api.Mutate[blogsync.MutationResult](ctx, c.api, DeleteComment, DeleteCommentArgs{ID: id, PostID: postID})
	return err
}

func (c *Client) LikeComment(ctx context.Context, id string) error {
	return c.toggle(ctx, LikeComment, id)
}

func (c *Client) UnlikeComment(ctx context.Context, id string) error {
	return c.toggle(ctx, UnlikeComment, id)
}

func (c *Client) Replies(ctx context.Context, commentID string, page int) (blogsync.Page[blogsync.Reply], error) {
	return api.Query[blogsync.Page[blogsync.Reply]](ctx, c.api, GetReplies, c.list(commentID, page))
}

func (c *Client) AddReply(ctx context.Context, commentID, content string) (blogsync.MutationResult, error) {
	return api.Mutate[blogsync.MutationResult](ctx, c.api, AddReply, ReplyArgs{CommentID: commentID, Content: content})
}

func (c *Client) DeleteReply(ctx context.Context, commentID, id string) error {
	_, err := api.Mutate[blogsync.MutationResult](ctx, c.api, DeleteReply, DeleteReplyArgs{ID: id, CommentID: commentID})
	return err
}

func (c *Client) LikeReply(ctx context.Context, id string) error {
	return c.toggle(ctx, LikeReply, id)
}

func (c *Client) UnlikeReply(ctx context.Context, id string) error {
	return c.toggle(ctx, UnlikeReply, id)
}

// --- users ---

func (c *Client) Profile(ctx context.Context, userID string) (blogsync.Profile, error) {
	return api.Query[blogsync.Profile](ctx, c.api, GetProfile, IDArgs{ID: userID})
}

func (c *Client) Followers(ctx context.Context, userID string, page int) (blogsync.Page[blogsync.User], error) {
	return api.Query[blogsync.Page[blogsync.User]](ctx, c.api, GetFollowers, c.list(userID, page))
}

func (c *Client) Following(ctx context.Context, userID string, page int) (blogsync.Page[blogsync.User], error) {
	return api.Query[blogsync.Page[blogsync.User]](ctx, c.api, GetFollowing, c.list(userID, page))
}

func (c *Client) Follow(ctx context.Context, userID string) error {
	return c.toggle(ctx, Follow, userID)
}

func (c *Client) Unfollow(ctx context.Context, userID string) error {
	return c.toggle(ctx, Unfollow, userID)
}

func (c *Client) UpdateProfile(ctx context.Context, args UpdateProfileArgs) error {
	_, err := api.Mutate[blogsync.MutationResult](ctx, c.api, UpdateProfile, args)
	return err
}

func (c *Client) toggle(ctx context.Context, m api.MutationDef[IDArgs], id string) error {
	_, err := api.Mutate[blogsync.MutationResult](ctx, c.api, m, IDArgs{ID: id})
	return err
}

// --- feeds ---

// PostsFeed pages through the global post list.
func (c *Client) PostsFeed() *Feed[blogsync.Post] {
	return newFeed(c, GetPosts, "", idOfPost)
}

// UserPostsFeed pages through one user's posts.
func (c *Client) UserPostsFeed(userID string) *Feed[blogsync.Post] {
	return newFeed(c, GetUserPosts, userID, idOfPost)
}

// CommentsFeed pages through a post's comments.
func (c *Client) CommentsFeed(postID string) *Feed[blogsync.Comment] {
	return newFeed(c, GetComments, postID, func(cm blogsync.Comment) string { return cm.ID })
}

// RepliesFeed pages through a comment's replies.
func (c *Client) RepliesFeed(commentID string) *Feed[blogsync.Reply] {
	return newFeed(c, GetReplies, commentID, func(r blogsync.Reply) string { return r.ID })
}

// FollowersFeed pages through a user's followers.
func (c *Client) FollowersFeed(userID string) *Feed[blogsync.User] {
	return newFeed(c, GetFollowers, userID, idOfUser)
}

// FollowingFeed pages through the users a user follows.
func (c *Client) FollowingFeed(userID string) *Feed[blogsync.User] {
	return newFeed(c, GetFollowing, userID, idOfUser)
}

func idOfPost(p blogsync.Post) string { return p.ID }

func idOfUser(u blogsync.User) string { return u.ID }
