// Package query provides engine-neutral abstractions for SQL execution.
//
//nolint:revive // package contains related DTO types
package query

import "time"

// Row is one result row keyed by column name. Its shape is determined entirely
// by the statement's projection.
type Row map[string]any

// Column describes a result column as reported by the engine.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type,omitempty"`
}

// Result holds the outcome of a single executed statement.
type Result struct {
	JobID    string        `json:"job_id,omitempty"`
	Columns  []Column      `json:"columns,omitempty"`
	Rows     []Row         `json:"rows"`
	Duration time.Duration `json:"-"`
}

// RowCount returns the number of rows in the result.
func (r *Result) RowCount() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Record is one output record of a batch, tagged with the index of the input
// statement that produced it.
type Record struct {
	Item int `json:"item"`
	JSON Row `json:"json"`
}
