package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	blogsync "github.com/eugener/blogsync/internal"
)

// routeOf returns the matched chi pattern, or the raw path before routing.
func routeOf(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}

// recovery turns a handler panic into a 500 that carries the request ID.
func (s *server) recovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				id := blogsync.RequestIDFromContext(r.Context())
				s.log.LogAttrs(r.Context(), slog.LevelError, "ops handler panic",
					slog.Any("error", rec),
					slog.String("route", routeOf(r)),
					slog.String("request_id", id),
				)
				writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error", RequestID: id})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

const requestIDHeader = "X-Request-Id"

// requestID tags the request with the caller's UUID or a fresh v7 one.
// Values that are not UUIDs are replaced so they never reach the logs.
func (s *server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(r.Header.Get(requestIDHeader))
		if err != nil {
			id = uuid.Must(uuid.NewV7())
		}
		w.Header()[requestIDHeader] = []string{id.String()}
		ctx := blogsync.ContextWithRequestID(r.Context(), id.String())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// logging records each ops request with the cache size at the time it was
// served. Scrapes log at debug; server errors at warn.
func (s *server) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		level := slog.LevelDebug
		if sw.status >= http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		attrs := []slog.Attr{
			slog.String("method", r.Method),
			slog.String("route", routeOf(r)),
			slog.Int("status", sw.status),
			slog.Int("bytes", sw.bytes),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
			slog.String("request_id", blogsync.RequestIDFromContext(r.Context())),
		}
		if s.deps.Cache != nil {
			attrs = append(attrs, slog.Int("cache_entries", s.deps.Cache.Len()))
		}
		s.log.LogAttrs(r.Context(), level, "ops request", attrs...)
	})
}

// statusWriter records the status code and body size of a response.
type statusWriter struct {
	http.ResponseWriter
	status      int
	bytes       int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	sw.wroteHeader = true
	n, err := sw.ResponseWriter.Write(b)
	sw.bytes += n
	return n, err
}

func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}
