// Package hierarchy detects, reshapes and orders parent/child record trees.
//
// A collection encodes a tree when its records carry a parent-reference field
// (parent_id or parent_uuid) whose value is another record's identity. The
// package converts between the flat parent-pointer form and the nested
// children form, orders flat collections so parents precede children, and
// reports cycles instead of looping on them.
package hierarchy

import "github.com/schemabounce/waterfall-bridge/types"

// parentFieldCandidates lists the parent-reference fields in priority order.
var parentFieldCandidates = []string{types.FieldParentID, types.FieldParentUUID}

// DetectParentField returns the field that references a record's parent, or
// "" when the collection does not look hierarchical. Only the first record is
// inspected, so the result is a hint: later records are not guaranteed to
// carry the field.
func DetectParentField(records types.Collection) string {
	if len(records) == 0 {
		return ""
	}

	first := records[0]
	for _, field := range parentFieldCandidates {
		if first.Has(field) {
			return field
		}
	}
	return ""
}

// IsNested reports whether any record carries an explicit children list,
// meaning the collection is in nested tree form.
func IsNested(records types.Collection) bool {
	for _, record := range records {
		if record.Has(types.FieldChildren) {
			return true
		}
	}
	return false
}
