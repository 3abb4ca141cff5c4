package dremio

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/txn2/mcp-dremio/pkg/query"
)

// Normalize maps the raw "rows" payload of a results response to rows in
// server order. Missing, null and empty payloads yield an empty, non-nil
// slice. Rows are passed through without schema validation; numbers are kept
// as json.Number so BIGINT values survive intact.
func Normalize(raw json.RawMessage) ([]query.Row, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []query.Row{}, nil
	}

	var elements []json.RawMessage
	if err := json.Unmarshal(trimmed, &elements); err != nil {
		return nil, &ProtocolError{Op: opFetch, Field: "rows", Reason: "expected an array", Err: err}
	}

	rows := make([]query.Row, 0, len(elements))
	for i, element := range elements {
		row, err := decodeRow(element)
		if err != nil {
			return nil, &ProtocolError{Op: opFetch, Field: "rows", Reason: fmt.Sprintf("row %d is not an object", i), Err: err}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func decodeRow(element json.RawMessage) (query.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(element))
	dec.UseNumber()

	var row query.Row
	if err := dec.Decode(&row); err != nil {
		return nil, err //nolint:wrapcheck // wrapped by Normalize with the row index
	}
	if row == nil {
		row = query.Row{}
	}
	return row, nil
}

// schemaField is one entry of the results "schema" array.
type schemaField struct {
	Name string `json:"name"`
	Type struct {
		Name string `json:"name"`
	} `json:"type"`
}

// normalizeSchema extracts column names and types. The schema is informational
// only, so an unexpected shape yields no columns rather than an error.
func normalizeSchema(raw json.RawMessage) []query.Column {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	var fields []schemaField
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil
	}
	columns := make([]query.Column, 0, len(fields))
	for _, f := range fields {
		columns = append(columns, query.Column{Name: f.Name, Type: f.Type.Name})
	}
	return columns
}
