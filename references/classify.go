// Package references detects foreign keys in records, attaches portable
// lookup metadata to them at export time and resolves that metadata against
// a target service at import time.
package references

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/schemabounce/waterfall-bridge/types"
)

// FieldClass is the outcome of classifying one record field.
type FieldClass int

const (
	NotForeignKey FieldClass = iota
	ForeignKey
)

func (c FieldClass) String() string {
	if c == ForeignKey {
		return "foreign_key"
	}
	return "not_foreign_key"
}

// canonicalIDLength is the length of the 8-4-4-4-12 hex form.
const canonicalIDLength = 36

// IsIdentifier reports whether v is a string in canonical 8-4-4-4-12
// hexadecimal form. Case is ignored. uuid.Parse also accepts braced, URN and
// dashless forms, which the length check rules out.
func IsIdentifier(v any) bool {
	s, ok := v.(string)
	if !ok || len(s) != canonicalIDLength {
		return false
	}
	_, err := uuid.Parse(s)
	return err == nil
}

// hasRelationSuffix reports whether a field name denotes a relation.
func hasRelationSuffix(field string) bool {
	return strings.HasSuffix(field, "_id") || strings.HasSuffix(field, "_uuid")
}

// ClassifyField classifies one field by name and value shape.
func ClassifyField(field string, value any) FieldClass {
	if field == types.FieldID || field == types.FieldOriginalID {
		return NotForeignKey
	}
	if !hasRelationSuffix(field) || !IsIdentifier(value) {
		return NotForeignKey
	}
	return ForeignKey
}

// DetectForeignKeys returns the sorted names of every field in record that
// classifies as a foreign key.
func DetectForeignKeys(record types.Record) []string {
	var fields []string
	for field, value := range record {
		if ClassifyField(field, value) == ForeignKey {
			fields = append(fields, field)
		}
	}
	sort.Strings(fields)
	return fields
}
