package types

import "net/http"

// IDMapping translates original identities to the identities created on
// the target during one import run.
type IDMapping map[string]string

// ResolutionDetail records one non-resolved reference.
type ResolutionDetail struct {
	RecordID    string           `json:"record_id,omitempty"`
	Field       string           `json:"field"`
	Status      ResolutionStatus `json:"status"`
	LookupValue any              `json:"lookup_value,omitempty"`
	Candidates  int              `json:"candidates,omitempty"`
	Error       string           `json:"error,omitempty"`
}

// ResolutionReport accumulates reference resolution outcomes across one
// import operation.
type ResolutionReport struct {
	Resolved  int                `json:"resolved"`
	Ambiguous int                `json:"ambiguous"`
	Missing   int                `json:"missing"`
	Errors    int                `json:"errors"`
	Details   []ResolutionDetail `json:"details"`
}

// NewResolutionReport returns an empty report.
func NewResolutionReport() *ResolutionReport {
	return &ResolutionReport{Details: []ResolutionDetail{}}
}

// Unresolved returns the number of references that were not resolved.
func (r *ResolutionReport) Unresolved() int {
	return r.Ambiguous + r.Missing + r.Errors
}

// RecordError describes a record that could not be created. It carries
// enough detail to retry the record manually.
type RecordError struct {
	OriginalID string `json:"original_id"`
	StatusCode int    `json:"status_code,omitempty"`
	Error      string `json:"error"`
}

// RecordOutcome is the per-record result of the create phase.
type RecordOutcome struct {
	OriginalID string `json:"original_id"`
	NewID      string `json:"new_id,omitempty"`
	Success    bool   `json:"success"`
}

// ImportReport summarizes the create phase of one import operation.
type ImportReport struct {
	Total     int             `json:"total"`
	Success   int             `json:"success"`
	Failed    int             `json:"failed"`
	IDMapping IDMapping       `json:"id_mapping"`
	Records   []RecordOutcome `json:"records"`
	Errors    []RecordError   `json:"errors"`
}

// NewImportReport returns an empty report sized for total records.
func NewImportReport(total int) *ImportReport {
	return &ImportReport{
		Total:     total,
		IDMapping: make(IDMapping),
		Records:   make([]RecordOutcome, 0, total),
		Errors:    []RecordError{},
	}
}

// StatusCode maps the report to the HTTP status the import surface answers
// with: 201 when every record was created, 207 on partial success and 400
// when nothing could be created.
func (r *ImportReport) StatusCode() int {
	switch {
	case r.Failed == 0:
		return http.StatusCreated
	case r.Success > 0:
		return http.StatusMultiStatus
	default:
		return http.StatusBadRequest
	}
}
