package formats

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/schemabounce/waterfall-bridge/types"
)

// CSV flattens each record into one row. Nested values are written as JSON
// text, null as an empty cell. Decoding reverses both; every other cell stays
// a string.
type CSV struct{}

func (CSV) Name() string        { return "csv" }
func (CSV) ContentType() string { return "text/csv" }
func (CSV) Extension() string   { return "csv" }

func (CSV) Encode(records types.Collection, _ EncodeOptions) ([]byte, error) {
	header := csvHeader(records)

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return nil, err
	}

	row := make([]string, len(header))
	for _, record := range records {
		for i, field := range header {
			cell, err := csvCell(record[field])
			if err != nil {
				return nil, fmt.Errorf("record %s field %s: %w", record.Identity(), field, err)
			}
			row[i] = cell
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// csvHeader orders _original_id and id first, then every other field seen
// in any record, sorted.
func csvHeader(records types.Collection) []string {
	seen := make(map[string]bool)
	for _, record := range records {
		for field := range record {
			seen[field] = true
		}
	}

	var header []string
	for _, priority := range []string{types.FieldOriginalID, types.FieldID} {
		if seen[priority] {
			header = append(header, priority)
			delete(seen, priority)
		}
	}

	rest := make([]string, 0, len(seen))
	for field := range seen {
		rest = append(rest, field)
	}
	sort.Strings(rest)
	return append(header, rest...)
}

func csvCell(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case bool:
		return strconv.FormatBool(val), nil
	case json.Number:
		return val.String(), nil
	case float64, float32, int, int32, int64, uint64:
		return types.IDString(val), nil
	default:
		// Maps, lists and typed metadata such as _references.
		data, err := json.Marshal(val)
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
}

func (CSV) Decode(data []byte) (types.Collection, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if !utf8.Valid(data) {
		return nil, malformed("csv", errors.New("file encoding must be UTF-8"))
	}

	r := csv.NewReader(bytes.NewReader(data))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, malformed("csv", err)
	}
	if len(rows) < 2 {
		return nil, malformed("csv", errors.New("file is empty"))
	}

	header := rows[0]
	records := make(types.Collection, 0, len(rows)-1)
	for _, row := range rows[1:] {
		record := make(types.Record, len(header))
		for i, field := range header {
			record[field] = parseCSVCell(row[i])
		}
		records = append(records, record)
	}
	return records, nil
}

func parseCSVCell(cell string) any {
	if cell == "" {
		return nil
	}
	if cell[0] == '{' || cell[0] == '[' {
		if v, err := types.DecodeJSON([]byte(cell)); err == nil {
			return v
		}
	}
	return cell
}
