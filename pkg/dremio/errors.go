package dremio

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Error kinds returned by Kind.
const (
	KindConfiguration  = "configuration"
	KindTransport      = "transport"
	KindProtocol       = "protocol"
	KindJobFailed      = "job_failed"
	KindPollingTimeout = "polling_timeout"
	KindCanceled       = "canceled"
	KindUnknown        = "unknown"
)

// maxErrorBodyChars bounds how much of a response body is echoed in an error message.
const maxErrorBodyChars = 512

// ConfigurationError reports a missing or invalid profile field or statement.
// It is always detected before any network call.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("dremio configuration: %s: %s", e.Field, e.Reason)
}

// TransportError reports a network failure or a non-2xx response.
// StatusCode is zero when no response was received.
type TransportError struct {
	Op         string
	Method     string
	URL        string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("dremio %s: %s %s: unexpected status %d: %s",
			e.Op, e.Method, e.URL, e.StatusCode, truncate(e.Body, maxErrorBodyChars))
	}
	return fmt.Sprintf("dremio %s: %s %s: %v", e.Op, e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a 2xx response that is missing an expected field or
// cannot be decoded.
type ProtocolError struct {
	Op     string
	Field  string
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	msg := fmt.Sprintf("dremio %s: malformed response", e.Op)
	if e.Field != "" {
		msg += fmt.Sprintf(": field %q", e.Field)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// JobFailedError reports a job that ended in FAILED or CANCELED.
type JobFailedError struct {
	JobID   string
	State   JobStatus
	Message string
}

func (e *JobFailedError) Error() string {
	msg := fmt.Sprintf("dremio job %s failed with state %s", e.JobID, e.State)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

// PollingTimeoutError reports a job that did not reach a terminal state within
// the poll policy. The job is left running on the server.
type PollingTimeoutError struct {
	JobID     string
	Attempts  int
	Elapsed   time.Duration
	LastState JobStatus
}

func (e *PollingTimeoutError) Error() string {
	return fmt.Sprintf("dremio job %s still %s after %d status checks (%s)",
		e.JobID, e.LastState, e.Attempts, e.Elapsed.Round(time.Millisecond))
}

// Kind classifies err into one of the Kind* constants.
func Kind(err error) string {
	var (
		cfgErr       *ConfigurationError
		transportErr *TransportError
		protocolErr  *ProtocolError
		jobErr       *JobFailedError
		timeoutErr   *PollingTimeoutError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return KindConfiguration
	case errors.As(err, &jobErr):
		return KindJobFailed
	case errors.As(err, &timeoutErr):
		return KindPollingTimeout
	case errors.As(err, &protocolErr):
		return KindProtocol
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	case errors.As(err, &transportErr):
		return KindTransport
	default:
		return KindUnknown
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
