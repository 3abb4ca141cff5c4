package audit

import "time"

// BreakdownDimension defines valid group-by dimensions.
type BreakdownDimension string

const (
	// BreakdownByToolName groups by tool name.
	BreakdownByToolName BreakdownDimension = "tool_name"

	// BreakdownByClient groups by the calling API key.
	BreakdownByClient BreakdownDimension = "client"

	// BreakdownByConnection groups by connection.
	BreakdownByConnection BreakdownDimension = "connection"

	// BreakdownByErrorKind groups failed statements by error kind.
	BreakdownByErrorKind BreakdownDimension = "error_kind"
)

// ValidBreakdownDimensions is the set of allowed group-by values.
var ValidBreakdownDimensions = map[BreakdownDimension]bool{
	BreakdownByToolName:   true,
	BreakdownByClient:     true,
	BreakdownByConnection: true,
	BreakdownByErrorKind:  true,
}

// BreakdownFilter controls breakdown query parameters.
type BreakdownFilter struct {
	GroupBy   BreakdownDimension
	Limit     int
	StartTime *time.Time
	EndTime   *time.Time
}

// BreakdownEntry holds aggregated stats for a single dimension value.
type BreakdownEntry struct {
	Dimension     string  `json:"dimension"`
	Count         int     `json:"count"`
	SuccessRate   float64 `json:"success_rate"`
	AvgDurationMS float64 `json:"avg_duration_ms"`
}

// Overview holds aggregate statistics for the audit log.
type Overview struct {
	TotalStatements int     `json:"total_statements"`
	SuccessRate     float64 `json:"success_rate"`
	AvgDurationMS   float64 `json:"avg_duration_ms"`
	TotalRows       int64   `json:"total_rows"`
	UniqueJobs      int     `json:"unique_jobs"`
	ErrorCount      int     `json:"error_count"`
}
