package audit

import "context"

// NoopLogger discards events. It is used when auditing is disabled.
type NoopLogger struct{}

// Log does nothing.
func (NoopLogger) Log(context.Context, Event) error { return nil }

// Query returns no events.
func (NoopLogger) Query(context.Context, QueryFilter) ([]Event, error) { return []Event{}, nil }

// Close does nothing.
func (NoopLogger) Close() error { return nil }

// Verify interface compliance.
var _ Logger = NoopLogger{}
