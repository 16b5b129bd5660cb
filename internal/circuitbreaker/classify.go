package circuitbreaker

import (
	"context"
	"errors"
	"net/http"
	"os"

	blogsync "github.com/eugener/blogsync/internal"
)

type httpStatusError interface {
	HTTPStatus() int
}

// Weight returns the error weight of a request outcome.
//
// Weights:
//   - nil, caller cancellation, 4xx except 429 -> 0
//   - 429 -> 0.5
//   - 5xx and network errors -> 1.0
//   - timeouts -> 1.5
func Weight(err error) float64 {
	if err == nil || errors.Is(err, context.Canceled) {
		return 0
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return 1.5
	}
	var he httpStatusError
	if errors.As(err, &he) {
		return weightForStatus(he.HTTPStatus())
	}
	switch blogsync.Classify(err) {
	case blogsync.KindNetwork, blogsync.KindServer:
		return 1.0
	default:
		return 0
	}
}

func weightForStatus(code int) float64 {
	switch {
	case code == http.StatusTooManyRequests:
		return 0.5
	case code >= 500:
		return 1.0
	default:
		return 0
	}
}
