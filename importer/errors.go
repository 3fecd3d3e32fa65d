package importer

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/schemabounce/waterfall-bridge/types"
)

// InputError rejects an import before anything is parsed or sent: bad
// parameters, an unknown format or an unreadable file.
type InputError struct {
	Err error
}

func (e *InputError) Error() string { return fmt.Sprintf("invalid import input: %v", e.Err) }
func (e *InputError) Unwrap() error { return e.Err }

// PrepareError reports a structural problem found while ordering records,
// such as a parent cycle.
type PrepareError struct {
	Err error
}

func (e *PrepareError) Error() string { return fmt.Sprintf("data preparation failed: %v", e.Err) }
func (e *PrepareError) Unwrap() error { return e.Err }

// AbortError is returned when a fail policy was breached during reference
// resolution. No record has been created.
type AbortError struct {
	Reason     string
	Resolution *types.ResolutionReport
}

func (e *AbortError) Error() string { return e.Reason }

// StatusCode maps an Import error to the HTTP status the import surface
// answers with.
func StatusCode(err error) int {
	var (
		inputErr   *InputError
		prepareErr *PrepareError
		abortErr   *AbortError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &inputErr), errors.As(err, &prepareErr), errors.As(err, &abortErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
