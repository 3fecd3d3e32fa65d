package formats

import (
	"bytes"
	"encoding/json"
	"errors"

	"github.com/schemabounce/waterfall-bridge/types"
)

// JSON encodes collections as an indented JSON array. Nested trees are
// preserved as-is.
type JSON struct{}

func (JSON) Name() string        { return "json" }
func (JSON) ContentType() string { return "application/json" }
func (JSON) Extension() string   { return "json" }

func (JSON) Encode(records types.Collection, _ EncodeOptions) ([]byte, error) {
	if records == nil {
		records = types.Collection{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (JSON) Decode(data []byte) (types.Collection, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, malformed("json", errors.New("empty file"))
	}
	raw, err := types.DecodeJSON(data)
	if err != nil {
		return nil, malformed("json", err)
	}
	if _, ok := raw.([]any); !ok {
		return nil, malformed("json", errors.New("expected a top-level array of records"))
	}
	records, err := types.AsCollection(raw)
	if err != nil {
		return nil, malformed("json", err)
	}
	return records, nil
}
