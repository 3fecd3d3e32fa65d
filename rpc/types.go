// Package rpc serves the bridge as a go-plugin net/rpc plugin and provides
// the host-side client.
package rpc

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/schemabounce/waterfall-bridge/exporter"
	"github.com/schemabounce/waterfall-bridge/importer"
)

// ExportRequest is the argument of Plugin.Export.
type ExportRequest struct {
	Options    exporter.Options `json:"options"`
	Credential string           `json:"-"`
}

// ExportResponse is the reply of Plugin.Export.
type ExportResponse struct {
	Data        []byte       `json:"-"`
	ContentType string       `json:"content_type"`
	Filename    string       `json:"filename"`
	Count       int          `json:"count"`
	Enriched    int          `json:"enriched"`
	ParentField string       `json:"parent_field,omitempty"`
	Artifact    *ArtifactRef `json:"artifact,omitempty"`
	Error       *RPCError    `json:"error,omitempty"`
}

// ArtifactRef describes a stored export.
type ArtifactRef struct {
	Key         string    `json:"key"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ImportRequest is the argument of Plugin.Import. Exactly one of Payload and
// Source is used; Source names an artifact key.
type ImportRequest struct {
	Options    importer.Options `json:"options"`
	Payload    []byte           `json:"-"`
	Source     string           `json:"source,omitempty"`
	Credential string           `json:"-"`
}

// ImportResponse is the reply of Plugin.Import. Reports travel as JSON
// because record values are untyped.
type ImportResponse struct {
	Result     json.RawMessage `json:"result,omitempty"`
	Resolution json.RawMessage `json:"resolution,omitempty"`
	Error      *RPCError       `json:"error,omitempty"`
}

// Error codes carried by RPCError.
const (
	CodeInput    = "input"
	CodePrepare  = "prepare"
	CodeAbort    = "abort"
	CodeFetch    = "fetch"
	CodeDelivery = "delivery"
	CodeInternal = "internal"
)

// RPCError is an operation failure reported across the plugin boundary.
type RPCError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
	// Status is the HTTP status the failure maps to.
	Status int `json:"status,omitempty"`
}

// Error implements the error interface
func (e *RPCError) Error() string {
	if e.Details != "" {
		return e.Message + ": " + e.Details
	}
	return e.Message
}

// HTTPStatus reports the mapped HTTP status.
func (e *RPCError) HTTPStatus() int {
	return e.Status
}

func exportError(err error) *RPCError {
	var (
		inputErr    *exporter.InputError
		fetchErr    *exporter.FetchError
		deliveryErr *exporter.DeliveryError
	)
	code := CodeInternal
	switch {
	case errors.As(err, &inputErr):
		code = CodeInput
	case errors.As(err, &fetchErr):
		code = CodeFetch
	case errors.As(err, &deliveryErr):
		code = CodeDelivery
	}
	return &RPCError{
		Message: exporter.Message(err),
		Code:    code,
		Status:  exporter.StatusCode(err),
	}
}

func importError(err error) *RPCError {
	var (
		inputErr   *importer.InputError
		prepareErr *importer.PrepareError
		abortErr   *importer.AbortError
	)
	code := CodeInternal
	switch {
	case errors.As(err, &inputErr):
		code = CodeInput
	case errors.As(err, &prepareErr):
		code = CodePrepare
	case errors.As(err, &abortErr):
		code = CodeAbort
	}
	return &RPCError{
		Message: err.Error(),
		Code:    code,
		Status:  importer.StatusCode(err),
	}
}
