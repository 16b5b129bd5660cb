package worker

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"
)

const defaultShutdownTimeout = 5 * time.Second

// HTTPServer serves an http.Handler until ctx is cancelled, then shuts down
// gracefully.
type HTTPServer struct {
	srv             *http.Server
	shutdownTimeout time.Duration
	ready           chan net.Addr
}

// NewHTTPServer creates an HTTPServer listening on addr.
func NewHTTPServer(addr string, h http.Handler) *HTTPServer {
	return &HTTPServer{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
		},
		shutdownTimeout: defaultShutdownTimeout,
		ready:           make(chan net.Addr, 1),
	}
}

// Name returns the worker identifier.
func (w *HTTPServer) Name() string { return "ops_server" }

// Ready yields the bound address once the listener is open.
func (w *HTTPServer) Ready() <-chan net.Addr { return w.ready }

// Run listens and serves until ctx is cancelled.
func (w *HTTPServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", w.srv.Addr)
	if err != nil {
		return err
	}
	w.ready <- ln.Addr()
	slog.LogAttrs(ctx, slog.LevelInfo, "ops server listening", slog.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		if err := w.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.shutdownTimeout)
	defer cancel()
	return w.srv.Shutdown(shutdownCtx)
}
