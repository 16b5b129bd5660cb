package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/eugener/blogsync/internal/blog"
)

type command struct {
	usage   string
	minArgs int
	maxArgs int
	run     func(ctx context.Context, c *blog.Client, args []string) (any, error)
}

func (c command) check(args []string) error {
	if len(args) < c.minArgs || len(args) > c.maxArgs {
		return fmt.Errorf("usage: blogsync %s", c.usage)
	}
	return nil
}

type ack struct {
	OK bool   `json:"ok"`
	ID string `json:"id,omitempty"`
}

var commands = map[string]command{
	"me": {usage: "me", run: func(ctx context.Context, c *blog.Client, _ []string) (any, error) {
		return c.Me(ctx)
	}},
	"feed": {usage: "feed [pages]", maxArgs: 1, run: runFeed},
	"post": {usage: "post <id>", minArgs: 1, maxArgs: 1, run: func(ctx context.Context, c *blog.Client, args []string) (any, error) {
		return c.Post(ctx, args[0])
	}},
	"publish": {usage: "publish <text>", minArgs: 1, maxArgs: 1, run: func(ctx context.Context, c *blog.Client, args []string) (any, error) {
		me, err := c.Me(ctx)
		if err != nil {
			return nil, err
		}
		return c.CreatePost(ctx, blog.CreatePostArgs{AuthorID: me.ID, Content: args[0]})
	}},
	"profile": {usage: "profile <userID>", minArgs: 1, maxArgs: 1, run: func(ctx context.Context, c *blog.Client, args []string) (any, error) {
		return c.Profile(ctx, args[0])
	}},
	"comments": {usage: "comments <postID>", minArgs: 1, maxArgs: 1, run: func(ctx context.Context, c *blog.Client, args []string) (any, error) {
		f := c.CommentsFeed(args[0])
		defer f.Close()
		if _, err := f.LoadNext(ctx); err != nil {
			return nil, err
		}
		return f.Items(), nil
	}},
	"comment": {usage: "comment <postID> <text>", minArgs: 2, maxArgs: 2, run: func(ctx context.Context, c *blog.Client, args []string) (any, error) {
		return c.AddComment(ctx, args[0], args[1])
	}},
	"like":     {usage: "like <postID>", minArgs: 1, maxArgs: 1, run: toggle((*blog.Client).LikePost)},
	"unlike":   {usage: "unlike <postID>", minArgs: 1, maxArgs: 1, run: toggle((*blog.Client).UnlikePost)},
	"follow":   {usage: "follow <userID>", minArgs: 1, maxArgs: 1, run: toggle((*blog.Client).Follow)},
	"unfollow": {usage: "unfollow <userID>", minArgs: 1, maxArgs: 1, run: toggle((*blog.Client).Unfollow)},
}

func toggle(fn func(*blog.Client, context.Context, string) error) func(context.Context, *blog.Client, []string) (any, error) {
	return func(ctx context.Context, c *blog.Client, args []string) (any, error) {
		if err := fn(c, ctx, args[0]); err != nil {
			return nil, err
		}
		return ack{OK: true, ID: args[0]}, nil
	}
}

// runFeed loads the first n pages of the home feed, or every page when n is
// absent.
func runFeed(ctx context.Context, c *blog.Client, args []string) (any, error) {
	pages := 0
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			return nil, fmt.Errorf("feed: pages must be a positive integer, got %q", args[0])
		}
		pages = n
	}

	f := c.PostsFeed()
	defer f.Close()
	for pages == 0 || f.Pages() < pages {
		more, err := f.LoadNext(ctx)
		if err != nil {
			return nil, err
		}
		if !more {
			break
		}
	}
	return f.Items(), nil
}

func commandHelp() string {
	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(commands)) {
		fmt.Fprintf(&b, "  %s\n", commands[name].usage)
	}
	return b.String()
}
