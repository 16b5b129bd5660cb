package blogsync

import (
	"context"
	"errors"
	"net/http"
	"os"
)

// Sentinel errors for the client domain.
var (
	ErrNetwork        = errors.New("network failure")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrSessionExpired = errors.New("session expired")
	ErrValidation     = errors.New("validation failed")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrServer         = errors.New("server error")
)

// ErrorKind is the coarse taxonomy callers branch on for user-visible messaging.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNetwork
	KindAuthExpired // 401, refreshable
	KindAuthInvalid // refresh failed or session ended
	KindValidation  // 4xx with message
	KindServer      // 5xx
)

// String returns the kind name used in logs and metric labels.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindAuthExpired:
		return "auth_expired"
	case KindAuthInvalid:
		return "auth_invalid"
	case KindValidation:
		return "validation"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// httpStatusError is implemented by errors carrying an HTTP status code.
type httpStatusError interface {
	HTTPStatus() int
}

// Classify maps an error to its ErrorKind. Session expiry wins over the
// underlying status so a failed refresh never reads as refreshable.
func Classify(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, ErrSessionExpired) {
		return KindAuthInvalid
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindNetwork
	}

	var he httpStatusError
	if errors.As(err, &he) {
		return KindForStatus(he.HTTPStatus())
	}
	if errors.Is(err, ErrNetwork) {
		return KindNetwork
	}
	if errors.Is(err, ErrUnauthorized) {
		return KindAuthExpired
	}
	if errors.Is(err, ErrServer) {
		return KindServer
	}
	if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
		return KindValidation
	}
	return KindNetwork
}

// KindForStatus returns the ErrorKind of an HTTP status code.
func KindForStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized:
		return KindAuthExpired
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindValidation
	default:
		return KindNone
	}
}

// SentinelForStatus returns the sentinel an API error with the given status matches.
func SentinelForStatus(code int) error {
	switch {
	case code == http.StatusUnauthorized:
		return ErrUnauthorized
	case code == http.StatusNotFound:
		return ErrNotFound
	case code == http.StatusConflict:
		return ErrConflict
	case code >= 500:
		return ErrServer
	case code >= 400:
		return ErrValidation
	default:
		return nil
	}
}
