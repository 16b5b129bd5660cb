package transport

import (
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"

	"golang.org/x/net/publicsuffix"
)

// Jar is a cookie jar that can be emptied when the session ends.
// It holds the access and refresh cookies; the client never reads them.
type Jar struct {
	mu  sync.RWMutex
	jar *cookiejar.Jar
}

// NewJar returns an empty jar using the public suffix list.
func NewJar() (*Jar, error) {
	j, err := newCookieJar()
	if err != nil {
		return nil, err
	}
	return &Jar{jar: j}, nil
}

func newCookieJar() (*cookiejar.Jar, error) {
	j, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return j, nil
}

// SetCookies implements http.CookieJar.
func (j *Jar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.RLock()
	jar := j.jar
	j.mu.RUnlock()
	jar.SetCookies(u, cookies)
}

// Cookies implements http.CookieJar.
func (j *Jar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.RLock()
	jar := j.jar
	j.mu.RUnlock()
	return jar.Cookies(u)
}

// Reset drops every cookie.
func (j *Jar) Reset() {
	fresh, err := newCookieJar()
	if err != nil {
		// cookiejar.New only fails on invalid options.
		return
	}
	j.mu.Lock()
	j.jar = fresh
	j.mu.Unlock()
}
