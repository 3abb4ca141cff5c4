package dremio

import (
	"context"
	"regexp"
	"strings"

	dremioclient "github.com/txn2/mcp-dremio/pkg/dremio"
	"github.com/txn2/mcp-dremio/pkg/query"
)

// writeKeywords are statement prefixes that modify data, schema, privileges
// or table maintenance state.
var writeKeywords = []string{
	"INSERT",
	"UPDATE",
	"DELETE",
	"MERGE",
	"DROP",
	"CREATE",
	"ALTER",
	"TRUNCATE",
	"GRANT",
	"REVOKE",
	"CALL",
	"OPTIMIZE",
	"VACUUM",
}

// writePattern matches statements that start with a write keyword, after any
// leading whitespace and comments.
var writePattern = regexp.MustCompile(
	`(?i)^\s*(?:--[^\n]*\n\s*|/\*[\s\S]*?\*/\s*)*\s*(` +
		strings.Join(writeKeywords, "|") +
		`)(?:\s|$|;|\()`,
)

// isWriteQuery checks if the SQL statement is a write operation.
func isWriteQuery(sql string) bool {
	return writePattern.MatchString(strings.TrimSpace(sql))
}

// readOnlyExecutor rejects write statements before they are submitted.
type readOnlyExecutor struct {
	next query.Executor
}

// ExecuteQuery runs sql unless it is a write statement.
func (r readOnlyExecutor) ExecuteQuery(ctx context.Context, sql string) (*query.Result, error) {
	if isWriteQuery(sql) {
		return nil, &dremioclient.ConfigurationError{
			Field:  "sql",
			Reason: "write operations are not allowed in read-only mode",
		}
	}
	return r.next.ExecuteQuery(ctx, sql) //nolint:wrapcheck // errors keep their dremio type
}
