package waterfall

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrInvalidJSON is returned when a response body is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON response")
	// ErrNotArray is returned when a collection endpoint answers with
	// something other than a JSON array of objects.
	ErrNotArray = errors.New("expected a JSON array")
	// ErrNotObject is returned when a record endpoint answers with something
	// other than a JSON object.
	ErrNotObject = errors.New("expected a JSON object")
)

// HTTPError is a non-2xx answer from the service.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// StatusCodeOf returns the status code carried by an *HTTPError in err's
// chain, or 0.
func StatusCodeOf(err error) int {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode
	}
	return 0
}

// IsTimeout reports whether err is a per-call timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
