package dremio

import (
	"context"
	"log/slog"
	"time"

	"github.com/txn2/mcp-dremio/pkg/audit"
	dremioclient "github.com/txn2/mcp-dremio/pkg/dremio"
	"github.com/txn2/mcp-dremio/pkg/query"
)

// auditedExecutor records one audit event per executed statement.
type auditedExecutor struct {
	next       query.Executor
	auditor    audit.Logger
	logger     *slog.Logger
	toolName   string
	requestID  string
	client     string
	connection string
	now        func() time.Time
}

// ExecuteQuery runs sql and logs the outcome. Audit failures are logged and
// never change the query result.
func (a auditedExecutor) ExecuteQuery(ctx context.Context, sql string) (*query.Result, error) {
	start := a.now()
	result, err := a.next.ExecuteQuery(ctx, sql)
	elapsed := a.now().Sub(start)

	event := audit.NewEvent(a.toolName).
		WithRequestID(a.requestID).
		WithClient(a.client).
		WithConnection(a.connection).
		WithSQL(sql)
	if err != nil {
		event.WithError(dremioclient.Kind(err), err.Error(), elapsed)
	} else {
		event.WithResult(result.JobID, result.RowCount(), elapsed)
	}

	// Logged with a context that outlives a canceled tool call.
	if logErr := a.auditor.Log(context.WithoutCancel(ctx), *event); logErr != nil {
		a.logger.Warn("failed to write audit event",
			"request_id", a.requestID, "tool", a.toolName, "error", logErr)
	}

	return result, err //nolint:wrapcheck // errors keep their dremio type
}
