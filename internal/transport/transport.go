// Package transport performs single HTTP calls against the blog API.
//
// HTTP is the innermost blogsync.Doer: one request per call, cookies kept in
// a resettable jar, every result either a JSON payload or an error that
// blogsync.Classify understands. It never retries.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/dnscache"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	blogsync "github.com/eugener/blogsync/internal"
	"github.com/eugener/blogsync/internal/cache"
)

var _ blogsync.Doer = (*HTTP)(nil)

const (
	requestIDHeader = "X-Request-Id"
	defaultTimeout  = 15 * time.Second
	// maxResponseBody bounds a success payload.
	maxResponseBody = 8 << 20
)

// Observer receives one call per completed round trip. status is 0 when no
// response was received.
type Observer interface {
	RequestDone(method string, status int, elapsed time.Duration)
}

// Options configures an HTTP transport.
type Options struct {
	BaseURL   string
	Timeout   time.Duration // per request; defaults to 15s
	UserAgent string

	// Base is the underlying round tripper. When nil, NewHTTPTransport(Resolver) is used.
	Base     http.RoundTripper
	Resolver *dnscache.Resolver

	// ETags enables conditional GETs. nil disables them.
	ETags    *cache.Memory
	Observer Observer
}

// HTTP is the blog API transport.
type HTTP struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	jar     *Jar
	etags   *cache.Memory
	obs     Observer
	tracer  trace.Tracer
}

// NewHTTP creates an HTTP transport with an empty cookie jar.
func NewHTTP(opts Options) (*HTTP, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("transport: base URL is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("transport: parse base URL: %w", err)
	}
	jar, err := NewJar()
	if err != nil {
		return nil, err
	}
	base := opts.Base
	if base == nil {
		base = NewHTTPTransport(opts.Resolver)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTP{
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		timeout: timeout,
		client: &http.Client{
			Transport: &headerTransport{UserAgent: opts.UserAgent, Base: base},
			Jar:       jar,
		},
		jar:    jar,
		etags:  opts.ETags,
		obs:    opts.Observer,
		tracer: otel.Tracer("blogsync/transport"),
	}, nil
}

// Jar returns the cookie jar holding the session credentials.
func (h *HTTP) Jar() *Jar { return h.jar }

// ResetSession drops session cookies and remembered validators.
func (h *HTTP) ResetSession() {
	h.jar.Reset()
	if h.etags != nil {
		h.etags.Purge()
	}
}

// Do sends req and returns the response payload. Non-2xx responses become
// *APIError; failures without a response wrap blogsync.ErrNetwork.
func (h *HTTP) Do(ctx context.Context, req blogsync.Request) (json.RawMessage, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
		req.Method = method
	}

	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	ctx, span := h.tracer.Start(ctx, "transport.do",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("url.path", req.Path),
		),
	)
	defer span.End()

	target := h.url(req)

	var body io.Reader
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("transport: marshal body: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("transport: create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	id := blogsync.RequestIDFromContext(ctx)
	if id == "" {
		id = uuid.Must(uuid.NewV7()).String()
	}
	httpReq.Header[requestIDHeader] = []string{id}

	var cached cache.Validator
	var haveCached bool
	if h.etags != nil && method == http.MethodGet {
		if cached, haveCached = h.etags.Get(target); haveCached {
			httpReq.Header.Set("If-None-Match", cached.ETag)
		}
	}

	start := time.Now()
	resp, err := h.client.Do(httpReq)
	if err != nil {
		h.done(ctx, req, 0, start, id)
		span.RecordError(err)
		span.SetStatus(codes.Error, "network failure")
		return nil, fmt.Errorf("%w: %s %s: %w", blogsync.ErrNetwork, method, req.Path, err)
	}
	defer resp.Body.Close()
	h.done(ctx, req, resp.StatusCode, start, id)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode == http.StatusNotModified && haveCached {
		span.SetAttributes(attribute.Bool("blogsync.not_modified", true))
		return json.RawMessage(cached.Body), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(req, resp)
		span.SetStatus(codes.Error, apiErr.Message)
		return nil, apiErr
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("%w: %s %s: read response: %w", blogsync.ErrNetwork, method, req.Path, err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		data = []byte("null")
	}
	if !gjson.ValidBytes(data) {
		span.SetStatus(codes.Error, "malformed response")
		return nil, fmt.Errorf("%w: %s %s: malformed JSON response", blogsync.ErrServer, method, req.Path)
	}

	if h.etags != nil && method == http.MethodGet {
		if etag := resp.Header.Get("ETag"); etag != "" {
			h.etags.Set(target, cache.Validator{ETag: etag, Body: data})
		}
	}
	return data, nil
}

func (h *HTTP) url(req blogsync.Request) string {
	u := h.baseURL + req.Path
	if len(req.Query) > 0 {
		u += "?" + req.Query.Encode()
	}
	return u
}

func (h *HTTP) done(ctx context.Context, req blogsync.Request, status int, start time.Time, id string) {
	elapsed := time.Since(start)
	slog.LogAttrs(ctx, slog.LevelDebug, "api request",
		slog.String("method", req.Method),
		slog.String("path", req.Path),
		slog.Int("status", status),
		slog.Int64("duration_ms", elapsed.Milliseconds()),
		slog.String("request_id", id),
	)
	if h.obs != nil {
		h.obs.RequestDone(req.Method, status, elapsed)
	}
}
