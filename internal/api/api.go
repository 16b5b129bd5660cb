// Package api runs endpoint definitions against the cache store and the
// transport. Queries are served from the store and filled through the Doer;
// mutations apply their optimistic patches, call the Doer, then either
// commit and invalidate or roll back.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	blogsync "github.com/eugener/blogsync/internal"
	"github.com/eugener/blogsync/internal/store"
)

// NoArgs is the argument type of endpoints that take none.
type NoArgs = struct{}

// QueryDef describes a cached read endpoint.
type QueryDef[A any] struct {
	Name    string
	Request func(args A) blogsync.Request
	// ProvidesTags labels a fetched result for invalidation and patching.
	ProvidesTags func(args A, data json.RawMessage) []store.Tag
}

// MutationDef describes a write endpoint.
type MutationDef[A any] struct {
	Name    string
	Request func(args A) blogsync.Request
	// Optimistic returns the patches applied before the request is sent.
	Optimistic func(args A) []store.Target
	// Invalidates returns the tags invalidated after a successful call.
	Invalidates func(args A, result json.RawMessage) []store.Tag
	// Settled runs once the call finished, successful or not, before
	// rollback or invalidation.
	Settled func(c *Client, args A, err error)
}

// Client binds endpoint definitions to a store and a Doer.
type Client struct {
	store  *store.Store
	doer   blogsync.Doer
	tracer trace.Tracer
}

// New creates a Client.
func New(s *store.Store, doer blogsync.Doer) *Client {
	return &Client{
		store:  s,
		doer:   doer,
		tracer: otel.Tracer("blogsync/api"),
	}
}

// Store returns the cache store.
func (c *Client) Store() *store.Store { return c.store }

// Doer returns the underlying request executor.
func (c *Client) Doer() blogsync.Doer { return c.doer }

// Reset drops every cached result.
func (c *Client) Reset() { c.store.Reset() }

// Bind returns the cache key and store definition of q called with args.
func Bind[A any](c *Client, q QueryDef[A], args A) (store.Key, store.Definition, error) {
	key, err := store.NewKey(q.Name, args)
	if err != nil {
		return store.Key{}, store.Definition{}, err
	}
	req := q.Request(args)
	def := store.Definition{
		Fetch: func(ctx context.Context) (json.RawMessage, error) {
			return c.doer.Do(ctx, req)
		},
	}
	if q.ProvidesTags != nil {
		def.Tags = func(data json.RawMessage) []store.Tag {
			return q.ProvidesTags(args, data)
		}
	}
	return key, def, nil
}

// Subscribe registers interest in q(args). The caller must Unsubscribe.
func Subscribe[A any](c *Client, q QueryDef[A], args A) (*store.Subscription, error) {
	key, def, err := Bind(c, q, args)
	if err != nil {
		return nil, err
	}
	return c.store.Subscribe(key, def), nil
}

// Query returns q(args) decoded into T, from the cache when fresh.
func Query[T, A any](ctx context.Context, c *Client, q QueryDef[A], args A) (T, error) {
	var zero T
	ctx, span := c.tracer.Start(ctx, "api.query",
		trace.WithAttributes(attribute.String("blogsync.endpoint", q.Name)),
	)
	defer span.End()

	sub, err := Subscribe(c, q, args)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", q.Name, err)
	}
	defer sub.Unsubscribe()

	e, err := sub.Wait(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, blogsync.Classify(err).String())
		return zero, fmt.Errorf("%s: %w", q.Name, err)
	}
	span.SetAttributes(attribute.String("blogsync.key", e.Key.String()))

	out, err := Decode[T](e.Data)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", q.Name, err)
	}
	return out, nil
}

// Mutate runs m(args). Optimistic patches are visible while the request is
// in flight; on failure they are rolled back before the error is returned.
func Mutate[T, A any](ctx context.Context, c *Client, m MutationDef[A], args A) (T, error) {
	var zero T
	ctx, span := c.tracer.Start(ctx, "api.mutate",
		trace.WithAttributes(attribute.String("blogsync.endpoint", m.Name)),
	)
	defer span.End()

	var patch *store.Patch
	if m.Optimistic != nil {
		p, err := c.store.ApplyPatches(m.Optimistic(args)...)
		if err != nil {
			return zero, fmt.Errorf("%s: optimistic update: %w", m.Name, err)
		}
		patch = p
		span.SetAttributes(attribute.Int("blogsync.patched_entries", p.Len()))
	}

	data, err := c.doer.Do(ctx, m.Request(args))
	if m.Settled != nil {
		m.Settled(c, args, err)
	}
	if err != nil {
		if patch != nil {
			patch.Rollback()
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, blogsync.Classify(err).String())
		slog.LogAttrs(ctx, slog.LevelDebug, "mutation failed",
			slog.String("endpoint", m.Name),
			slog.String("kind", blogsync.Classify(err).String()),
			slog.String("error", err.Error()),
		)
		return zero, fmt.Errorf("%s: %w", m.Name, err)
	}

	if patch != nil {
		patch.Commit()
	}
	if m.Invalidates != nil {
		if tags := m.Invalidates(args, data); len(tags) > 0 {
			c.store.InvalidateTags(tags...)
		}
	}

	out, err := Decode[T](data)
	if err != nil {
		return zero, fmt.Errorf("%s: %w", m.Name, err)
	}
	return out, nil
}

// Decode unmarshals a cached or returned payload into T.
func Decode[T any](data json.RawMessage) (T, error) {
	var out T
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
