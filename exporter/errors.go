package exporter

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/schemabounce/waterfall-bridge/waterfall"
)

// InputError rejects an export before the source is contacted.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return fmt.Sprintf("invalid export input: %v", e.Err) }
func (e *InputError) Unwrap() error { return e.Err }

// FetchError reports that the source collection could not be read.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string { return fmt.Sprintf("fetch %s: %v", e.URL, e.Err) }
func (e *FetchError) Unwrap() error { return e.Err }

// DeliveryError reports that the encoded file could not be stored.
type DeliveryError struct {
	Key string
	Err error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("deliver export to %q: %v", e.Key, e.Err) }
func (e *DeliveryError) Unwrap() error { return e.Err }

// StatusCode maps a Run error to the HTTP status the export surface answers
// with. A source that answers with something other than an array is the
// caller's mistake (400); every other upstream failure is a bad gateway,
// except timeouts (504).
func StatusCode(err error) int {
	var (
		inputErr *InputError
		fetchErr *FetchError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.As(err, &fetchErr):
		switch {
		case waterfall.IsTimeout(err):
			return http.StatusGatewayTimeout
		case errors.Is(err, waterfall.ErrNotArray):
			return http.StatusBadRequest
		default:
			return http.StatusBadGateway
		}
	default:
		return http.StatusInternalServerError
	}
}

// Message is the client-facing text for err.
func Message(err error) string {
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		return err.Error()
	}
	switch {
	case waterfall.IsTimeout(err):
		return fmt.Sprintf("timeout connecting to %s", fetchErr.URL)
	case errors.Is(err, waterfall.ErrNotArray):
		return "target URL must return a JSON array"
	case errors.Is(err, waterfall.ErrInvalidJSON):
		return "target service returned invalid JSON"
	}
	if code := waterfall.StatusCodeOf(err); code != 0 {
		return fmt.Sprintf("target service returned error: %d", code)
	}
	return fmt.Sprintf("failed to connect to %s", fetchErr.URL)
}
