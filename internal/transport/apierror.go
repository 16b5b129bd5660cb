package transport

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	blogsync "github.com/eugener/blogsync/internal"
)

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4096

// APIError is a non-2xx response from the blog API.
// It satisfies the httpStatusError interface used by blogsync.Classify.
type APIError struct {
	Status  int
	Message string
	Method  string
	Path    string
}

// Error returns a formatted error string including method, path, status, and message.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.Path, e.Status, e.Message)
}

// HTTPStatus returns the HTTP status code for classification.
func (e *APIError) HTTPStatus() int { return e.Status }

// Is reports whether target is the sentinel for this status, so callers can
// write errors.Is(err, blogsync.ErrUnauthorized).
func (e *APIError) Is(target error) bool {
	s := blogsync.SentinelForStatus(e.Status)
	return s != nil && target == s
}

// parseAPIError reads up to 4KB from the response body and returns an APIError.
// The message is taken from a string "message" or "error" field when the body
// is JSON, otherwise from the raw text.
func parseAPIError(req blogsync.Request, resp *http.Response) *APIError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		Status:  resp.StatusCode,
		Message: errorMessage(body, resp.StatusCode),
		Method:  req.Method,
		Path:    req.Path,
	}
}

func errorMessage(body []byte, status int) string {
	if gjson.ValidBytes(body) {
		for _, field := range [...]string{"message", "error"} {
			if r := gjson.GetBytes(body, field); r.Type == gjson.String && r.Str != "" {
				return r.Str
			}
		}
	}
	if text := strings.TrimSpace(string(body)); text != "" {
		return text
	}
	return http.StatusText(status)
}
