// Package types provides the shared record and report definitions used by the bridge.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// Well-known record fields.
const (
	FieldID         = "id"
	FieldOriginalID = "_original_id"
	FieldReferences = "_references"
	FieldChildren   = "children"
	FieldParentID   = "parent_id"
	FieldParentUUID = "parent_uuid"
	FieldCreatedAt  = "created_at"
	FieldUpdatedAt  = "updated_at"
)

// Record is one item of a resource collection, keyed by field name.
type Record map[string]any

// Collection is an ordered sequence of records of one resource type.
type Collection []Record

// Identity returns the record's distinguishing identifier: the preserved
// _original_id when present, otherwise the service-assigned id. An empty
// string means the record has no usable identity.
func (r Record) Identity() string {
	if id := IDString(r[FieldOriginalID]); id != "" {
		return id
	}
	return IDString(r[FieldID])
}

// Ref returns the identifier stored under field, or "" when the field is
// absent, null or empty.
func (r Record) Ref(field string) string {
	if field == "" {
		return ""
	}
	return IDString(r[field])
}

// Has reports whether the field is present, even if its value is null.
func (r Record) Has(field string) bool {
	_, ok := r[field]
	return ok
}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	cp := make(Record, len(r))
	for k, v := range r {
		cp[k] = v
	}
	return cp
}

// Without returns a shallow copy of the record with the given fields removed.
func (r Record) Without(fields ...string) Record {
	cp := r.Clone()
	for _, f := range fields {
		delete(cp, f)
	}
	return cp
}

// IDString normalizes an identifier value to its string form. Strings are
// returned as-is, JSON numbers are formatted without exponent, and every
// other type (including nil and booleans) yields "".
func IDString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case json.Number:
		return id.String()
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(id), 'f', -1, 32)
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	case int32:
		return strconv.FormatInt(int64(id), 10)
	case uint64:
		return strconv.FormatUint(id, 10)
	default:
		return ""
	}
}

// DecodeJSON decodes a single JSON document into untyped values. Numbers
// are kept as json.Number so identifiers beyond 2^53 survive intact.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after top-level value")
	}
	return v, nil
}

// IsEmpty reports whether a field value counts as absent: nil, an empty
// string, or an empty list or map.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	case Record:
		return len(val) == 0
	default:
		return false
	}
}

// AsRecord converts a decoded JSON object into a Record.
func AsRecord(v any) (Record, bool) {
	switch m := v.(type) {
	case Record:
		return m, true
	case map[string]any:
		return Record(m), true
	default:
		return nil, false
	}
}

// AsCollection converts a decoded JSON array of objects into a Collection.
// Non-object elements are reported as an error.
func AsCollection(v any) (Collection, error) {
	switch items := v.(type) {
	case nil:
		return nil, nil
	case Collection:
		return items, nil
	case []Record:
		return Collection(items), nil
	case []map[string]any:
		out := make(Collection, len(items))
		for i, m := range items {
			out[i] = Record(m)
		}
		return out, nil
	case []any:
		out := make(Collection, 0, len(items))
		for i, item := range items {
			rec, ok := AsRecord(item)
			if !ok {
				return nil, fmt.Errorf("element %d is %T, expected an object", i, item)
			}
			out = append(out, rec)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("expected an array of objects, got %T", v)
	}
}
