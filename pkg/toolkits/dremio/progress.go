package dremio

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	dremioclient "github.com/txn2/mcp-dremio/pkg/dremio"
)

// progressNotifier forwards job state changes to the MCP client as progress
// notifications.
type progressNotifier struct {
	session *mcp.ServerSession
	token   any
}

// observe is a dremioclient.StateObserver.
func (n *progressNotifier) observe(ctx context.Context) dremioclient.StateObserver {
	return func(jobID string, attempt int, state dremioclient.JobStatus) {
		// Notification failures never fail the query.
		_ = n.session.NotifyProgress(ctx, &mcp.ProgressNotificationParams{
			ProgressToken: n.token,
			Progress:      float64(attempt),
			Message:       fmt.Sprintf("job %s: %s", jobID, state),
		})
	}
}

// withProgress attaches a state observer to ctx when the caller asked for
// progress.
func withProgress(ctx context.Context, req *mcp.CallToolRequest) context.Context {
	if req == nil || req.Session == nil || req.Params == nil {
		return ctx
	}
	token := req.Params.GetProgressToken()
	if token == nil {
		return ctx
	}
	n := &progressNotifier{session: req.Session, token: token}
	return dremioclient.WithStateObserver(ctx, n.observe(ctx))
}
