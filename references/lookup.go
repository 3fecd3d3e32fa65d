package references

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// LookupConfig maps a resource type to its candidate lookup fields. Only the
// first field of each entry is used.
type LookupConfig map[string][]string

// DefaultFallbackField is used for resource types without a configured
// lookup field.
const DefaultFallbackField = "name"

// UsersResource is the resource type that user-valued fields refer to.
const UsersResource = "users"

var (
	builtinLookupFields = LookupConfig{
		"users":      {"email"},
		"companies":  {"name"},
		"projects":   {"name"},
		"tasks":      {"name"},
		"roles":      {"name"},
		"categories": {"name"},
	}

	builtinPlurals = map[string]string{
		"company":  "companies",
		"category": "categories",
		"person":   "people",
		"child":    "children",
	}

	userFields = map[string]bool{
		"assigned_to": true,
		"created_by":  true,
		"updated_by":  true,
	}
)

// LookupTable holds the lookup-field defaults and plural exceptions used to
// derive reference descriptors. It is built once at startup and never
// mutated afterwards; the zero value is not usable, use NewLookupTable or
// DefaultLookupTable.
type LookupTable struct {
	fields   LookupConfig
	plurals  map[string]string
	fallback string
}

// DefaultLookupTable returns the built-in table.
func DefaultLookupTable() *LookupTable {
	return NewLookupTable(nil, nil, "")
}

// NewLookupTable layers fields and plurals over the built-in defaults. An
// empty fallback selects DefaultFallbackField.
func NewLookupTable(fields LookupConfig, plurals map[string]string, fallback string) *LookupTable {
	t := &LookupTable{
		fields:   make(LookupConfig, len(builtinLookupFields)+len(fields)),
		plurals:  make(map[string]string, len(builtinPlurals)+len(plurals)),
		fallback: fallback,
	}
	if t.fallback == "" {
		t.fallback = DefaultFallbackField
	}
	for resource, f := range builtinLookupFields {
		t.fields[resource] = append([]string(nil), f...)
	}
	for resource, f := range fields {
		if len(f) > 0 {
			t.fields[resource] = append([]string(nil), f...)
		}
	}
	for singular, plural := range builtinPlurals {
		t.plurals[singular] = plural
	}
	for singular, plural := range plurals {
		t.plurals[strings.ToLower(singular)] = plural
	}
	return t
}

// LookupField returns the lookup field for resourceType. A per-call override
// takes precedence for the resource types it names; every other resource
// type falls back to the table and then to the generic fallback field.
func (t *LookupTable) LookupField(resourceType string, override LookupConfig) string {
	if f := override[resourceType]; len(f) > 0 && f[0] != "" {
		return f[0]
	}
	if f := t.fields[resourceType]; len(f) > 0 && f[0] != "" {
		return f[0]
	}
	return t.fallback
}

// ResourceType derives the referenced resource type from a foreign-key
// field name: project_id becomes projects and created_by becomes users.
func (t *LookupTable) ResourceType(field string) string {
	base := stripRelationSuffix(field)
	if userFields[field] || userFields[base] {
		return UsersResource
	}
	return t.Pluralize(base)
}

// Pluralize returns the plural form of a singular resource name.
func (t *LookupTable) Pluralize(word string) string {
	if word == "" {
		return ""
	}
	if plural, ok := t.plurals[strings.ToLower(word)]; ok {
		return plural
	}

	n := len(word)
	switch {
	case n >= 2 && word[n-1] == 'y' && !isVowel(word[n-2]):
		return word[:n-1] + "ies"
	case strings.HasSuffix(word, "s"), strings.HasSuffix(word, "x"), strings.HasSuffix(word, "z"),
		strings.HasSuffix(word, "ch"), strings.HasSuffix(word, "sh"):
		return word + "es"
	default:
		return word + "s"
	}
}

// Fields returns a copy of the effective lookup-field table.
func (t *LookupTable) Fields() LookupConfig {
	out := make(LookupConfig, len(t.fields))
	for resource, f := range t.fields {
		out[resource] = append([]string(nil), f...)
	}
	return out
}

// Plurals returns a copy of the plural exception table.
func (t *LookupTable) Plurals() map[string]string {
	out := make(map[string]string, len(t.plurals))
	for k, v := range t.plurals {
		out[k] = v
	}
	return out
}

// Fallback returns the field used when no lookup field is configured.
func (t *LookupTable) Fallback() string {
	return t.fallback
}

func stripRelationSuffix(field string) string {
	if s, ok := strings.CutSuffix(field, "_uuid"); ok {
		return s
	}
	if s, ok := strings.CutSuffix(field, "_id"); ok {
		return s
	}
	return field
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

// ParseLookupConfig decodes a lookup_config parameter. Each resource type
// may map to a single field name or to a list of them. An empty string
// yields a nil config.
func ParseLookupConfig(raw string) (LookupConfig, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, fmt.Errorf("invalid lookup_config: %w", err)
	}

	cfg := make(LookupConfig, len(decoded))
	resources := make([]string, 0, len(decoded))
	for resource := range decoded {
		resources = append(resources, resource)
	}
	sort.Strings(resources)

	for _, resource := range resources {
		value := decoded[resource]

		var single string
		if err := json.Unmarshal(value, &single); err == nil {
			cfg[resource] = []string{single}
			continue
		}
		var list []string
		if err := json.Unmarshal(value, &list); err != nil {
			return nil, fmt.Errorf("invalid lookup_config for %q: expected a field name or a list of field names", resource)
		}
		cfg[resource] = list
	}
	return cfg, nil
}
