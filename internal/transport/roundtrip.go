package transport

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/rs/dnscache"
)

// NewHTTPTransport returns a tuned *http.Transport with connection pooling and
// optional DNS caching.
func NewHTTPTransport(resolver *dnscache.Resolver) *http.Transport {
	t := &http.Transport{
		MaxIdleConnsPerHost: 16,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if resolver != nil {
		t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, port, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, err
			}
			ips, err := resolver.LookupHost(ctx, host)
			if err != nil {
				return nil, err
			}
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
		}
	}
	return t
}

// headerTransport is an http.RoundTripper that sets static client headers
// on every outbound request.
type headerTransport struct {
	UserAgent string
	Base      http.RoundTripper
}

// RoundTrip clones the request and sets the headers.
func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r2 := r.Clone(r.Context())
	if t.UserAgent != "" {
		r2.Header.Set("User-Agent", t.UserAgent)
	}
	r2.Header.Set("Accept", "application/json")
	return t.base().RoundTrip(r2)
}

func (t *headerTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}
