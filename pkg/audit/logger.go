// Package audit records every statement executed through the server.
package audit

import (
	"context"
	"time"
)

// Logger defines the interface for audit logging.
type Logger interface {
	// Log records an audit event.
	Log(ctx context.Context, event Event) error

	// Query retrieves audit events matching the filter.
	Query(ctx context.Context, filter QueryFilter) ([]Event, error)

	// Close releases resources.
	Close() error
}

// Event is one executed statement. Batch tool calls produce one event per
// statement, sharing a RequestID.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	DurationMS   int64     `json:"duration_ms"`
	RequestID    string    `json:"request_id"`
	ToolName     string    `json:"tool_name"`
	Client       string    `json:"client,omitempty"` // API key name of the caller
	Connection   string    `json:"connection,omitempty"`
	JobID        string    `json:"job_id,omitempty"`
	SQL          string    `json:"sql"`
	RowCount     int       `json:"row_count"`
	Success      bool      `json:"success"`
	ErrorKind    string    `json:"error_kind,omitempty"`
	ErrorMessage string    `json:"error_message,omitempty"`
}

// QueryFilter defines criteria for querying audit events.
type QueryFilter struct {
	ID         string
	RequestID  string
	StartTime  *time.Time
	EndTime    *time.Time
	ToolName   string
	Client     string
	Connection string
	ErrorKind  string
	Success    *bool
	Limit      int
	Offset     int
}

// Config configures audit logging.
type Config struct {
	Enabled       bool
	RetentionDays int
}
