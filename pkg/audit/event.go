package audit

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// MaxSQLLength bounds the statement text stored with an event.
const MaxSQLLength = 8192

// NewEvent creates a new audit event.
func NewEvent(toolName string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		ToolName:  toolName,
	}
}

// WithRequestID adds a request ID to the event.
func (e *Event) WithRequestID(requestID string) *Event {
	e.RequestID = requestID
	return e
}

// WithClient records the name of the API key that made the call.
func (e *Event) WithClient(client string) *Event {
	e.Client = client
	return e
}

// WithConnection adds connection information to the event.
func (e *Event) WithConnection(connection string) *Event {
	e.Connection = connection
	return e
}

// WithSQL records the executed statement, truncated to MaxSQLLength bytes.
func (e *Event) WithSQL(sql string) *Event {
	e.SQL = TruncateSQL(sql)
	return e
}

// WithResult marks the event successful.
func (e *Event) WithResult(jobID string, rowCount int, duration time.Duration) *Event {
	e.Success = true
	e.JobID = jobID
	e.RowCount = rowCount
	e.DurationMS = duration.Milliseconds()
	return e
}

// WithError marks the event failed.
func (e *Event) WithError(kind, message string, duration time.Duration) *Event {
	e.Success = false
	e.ErrorKind = kind
	e.ErrorMessage = message
	e.DurationMS = duration.Milliseconds()
	return e
}

// TruncateSQL cuts sql to at most MaxSQLLength bytes without splitting a
// multi-byte rune.
func TruncateSQL(sql string) string {
	if len(sql) <= MaxSQLLength {
		return sql
	}
	cut := MaxSQLLength
	for cut > 0 && !utf8.RuneStart(sql[cut]) {
		cut--
	}
	return sql[:cut]
}
