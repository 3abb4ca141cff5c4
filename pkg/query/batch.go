package query

import (
	"context"
	"fmt"
)

// BatchOptions controls how RunBatch treats a failing statement.
type BatchOptions struct {
	// ContinueOnFail records a failure as {"error": message} for that item and
	// moves on instead of aborting the batch.
	ContinueOnFail bool
}

// ItemError reports the statement that aborted a batch.
type ItemError struct {
	Index int
	Err   error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("item %d: %v", e.Index, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

// RunBatch executes statements strictly one after another. Each statement runs
// to completion before the next is submitted. On an aborting failure the
// records produced by earlier items are returned along with an *ItemError.
func RunBatch(ctx context.Context, exec Executor, statements []string, opts BatchOptions) ([]Record, error) {
	records := make([]Record, 0, len(statements))

	for i, sql := range statements {
		if err := ctx.Err(); err != nil {
			return records, &ItemError{Index: i, Err: err}
		}

		result, err := exec.ExecuteQuery(ctx, sql)
		if err != nil {
			if opts.ContinueOnFail && ctx.Err() == nil {
				records = append(records, Record{Item: i, JSON: Row{"error": err.Error()}})
				continue
			}
			return records, &ItemError{Index: i, Err: err}
		}

		for _, row := range result.Rows {
			records = append(records, Record{Item: i, JSON: row})
		}
	}

	return records, nil
}
