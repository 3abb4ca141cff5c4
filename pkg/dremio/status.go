package dremio

import (
	"fmt"
	"strings"
)

// JobStatus is the state of a Dremio job as reported by the status endpoint.
type JobStatus string

// Transient job states.
const (
	JobNotSubmitted          JobStatus = "NOT_SUBMITTED"
	JobEnqueued              JobStatus = "ENQUEUED"
	JobStarting              JobStatus = "STARTING"
	JobEngineStart           JobStatus = "ENGINE_START"
	JobQueued                JobStatus = "QUEUED"
	JobPending               JobStatus = "PENDING"
	JobMetadataRetrieval     JobStatus = "METADATA_RETRIEVAL"
	JobPlanning              JobStatus = "PLANNING"
	JobExecutionPlanning     JobStatus = "EXECUTION_PLANNING"
	JobRunning               JobStatus = "RUNNING"
	JobCancellationRequested JobStatus = "CANCELLATION_REQUESTED"
)

// Terminal job states.
const (
	JobCompleted JobStatus = "COMPLETED"
	JobFailed    JobStatus = "FAILED"
	JobCanceled  JobStatus = "CANCELED"
)

var knownStates = map[JobStatus]bool{
	JobNotSubmitted:          false,
	JobEnqueued:              false,
	JobStarting:              false,
	JobEngineStart:           false,
	JobQueued:                false,
	JobPending:               false,
	JobMetadataRetrieval:     false,
	JobPlanning:              false,
	JobExecutionPlanning:     false,
	JobRunning:               false,
	JobCancellationRequested: false,
	JobCompleted:             true,
	JobFailed:                true,
	JobCanceled:              true,
}

// ParseJobStatus parses a jobState value. Empty and unrecognised values are
// errors so that an unexpected payload is never mistaken for progress.
func ParseJobStatus(s string) (JobStatus, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if normalized == "" {
		return "", fmt.Errorf("job state is empty")
	}
	if normalized == "CANCELLED" {
		return JobCanceled, nil
	}
	status := JobStatus(normalized)
	if _, ok := knownStates[status]; !ok {
		return "", fmt.Errorf("unrecognized job state %q", s)
	}
	return status, nil
}

// IsTerminal reports whether no further transition can occur.
func (s JobStatus) IsTerminal() bool {
	return knownStates[s]
}

// IsFailure reports whether the job ended without results.
func (s JobStatus) IsFailure() bool {
	return s == JobFailed || s == JobCanceled
}

func (s JobStatus) String() string {
	return string(s)
}
