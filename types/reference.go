package types

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// ReferenceDescriptor is the portable lookup metadata attached to a foreign
// key at export time so the reference can be re-identified on another
// instance of the service.
type ReferenceDescriptor struct {
	ResourceType string `json:"resource_type"`
	OriginalID   string `json:"original_id"`
	LookupField  string `json:"lookup_field"`
	LookupValue  any    `json:"lookup_value"`
}

// References maps a foreign-key field name to its descriptor.
type References map[string]ReferenceDescriptor

// Fields returns the field names in sorted order.
func (r References) Fields() []string {
	fields := make([]string, 0, len(r))
	for f := range r {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	return fields
}

// ReferencesOf extracts the _references metadata from a record. It accepts
// both the typed form produced by enrichment and the generic map form
// produced by decoding a file. A record without metadata yields (nil, false).
func ReferencesOf(r Record) (References, bool, error) {
	raw, ok := r[FieldReferences]
	if !ok || raw == nil {
		return nil, false, nil
	}

	switch refs := raw.(type) {
	case References:
		return refs, true, nil
	case map[string]ReferenceDescriptor:
		return References(refs), true, nil
	case string:
		// CSV round trips may leave the metadata as JSON text.
		if strings.TrimSpace(refs) == "" {
			return nil, false, nil
		}
		var out References
		if err := json.Unmarshal([]byte(refs), &out); err != nil {
			return nil, false, fmt.Errorf("invalid %s metadata: %w", FieldReferences, err)
		}
		return out, true, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, false, fmt.Errorf("invalid %s metadata: %w", FieldReferences, err)
	}
	var out References
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false, fmt.Errorf("invalid %s metadata: %w", FieldReferences, err)
	}
	return out, true, nil
}

// ResolutionStatus classifies the outcome of resolving one reference.
type ResolutionStatus string

const (
	StatusResolved  ResolutionStatus = "resolved"
	StatusAmbiguous ResolutionStatus = "ambiguous"
	StatusMissing   ResolutionStatus = "missing"
	StatusError     ResolutionStatus = "error"
)

// Resolution is the classified result of a reference lookup against the
// target service.
type Resolution struct {
	Status     ResolutionStatus `json:"status"`
	ResolvedID string           `json:"resolved_id,omitempty"`
	Candidates Collection       `json:"candidates,omitempty"`
	Error      string           `json:"error,omitempty"`
}

// Policy selects how ambiguous or missing references are handled.
type Policy string

const (
	PolicySkip Policy = "skip"
	PolicyFail Policy = "fail"
)

// ParsePolicy parses a policy flag; the empty string selects skip.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicySkip:
		return PolicySkip, nil
	case PolicyFail:
		return PolicyFail, nil
	default:
		return "", fmt.Errorf("invalid policy %q: must be 'skip' or 'fail'", s)
	}
}
