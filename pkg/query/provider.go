package query

import "context"

// Executor runs a single SQL statement to completion and returns its rows.
// Dremio implements this.
type Executor interface {
	ExecuteQuery(ctx context.Context, sql string) (*Result, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, sql string) (*Result, error)

// ExecuteQuery calls f(ctx, sql).
func (f ExecutorFunc) ExecuteQuery(ctx context.Context, sql string) (*Result, error) {
	return f(ctx, sql)
}
