package query

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scripted returns one canned result or error per statement and records calls.
type scripted struct {
	results map[string]*Result
	errs    map[string]error
	calls   []string
}

func (s *scripted) ExecuteQuery(_ context.Context, sql string) (*Result, error) {
	s.calls = append(s.calls, sql)
	if err, ok := s.errs[sql]; ok {
		return nil, err
	}
	if r, ok := s.results[sql]; ok {
		return r, nil
	}
	return &Result{Rows: []Row{}}, nil
}

func newScripted() *scripted {
	return &scripted{
		results: map[string]*Result{
			"a": {Rows: []Row{{"n": 1}, {"n": 2}}},
			"c": {Rows: []Row{{"n": 3}}},
		},
		errs: map[string]error{"b": errors.New("table not found")},
	}
}

func TestRunBatch_AllSucceed(t *testing.T) {
	exec := newScripted()

	records, err := RunBatch(context.Background(), exec, []string{"a", "c"}, BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{Item: 0, JSON: Row{"n": 1}},
		{Item: 0, JSON: Row{"n": 2}},
		{Item: 1, JSON: Row{"n": 3}},
	}, records)
	assert.Equal(t, []string{"a", "c"}, exec.calls)
}

func TestRunBatch_ContinueOnFail(t *testing.T) {
	exec := newScripted()

	records, err := RunBatch(context.Background(), exec, []string{"a", "b", "c"}, BatchOptions{ContinueOnFail: true})
	require.NoError(t, err)
	assert.Equal(t, []Record{
		{Item: 0, JSON: Row{"n": 1}},
		{Item: 0, JSON: Row{"n": 2}},
		{Item: 1, JSON: Row{"error": "table not found"}},
		{Item: 2, JSON: Row{"n": 3}},
	}, records)
	assert.Equal(t, []string{"a", "b", "c"}, exec.calls)
}

func TestRunBatch_AbortsOnFailure(t *testing.T) {
	exec := newScripted()

	records, err := RunBatch(context.Background(), exec, []string{"a", "b", "c"}, BatchOptions{})

	var itemErr *ItemError
	require.True(t, errors.As(err, &itemErr))
	assert.Equal(t, 1, itemErr.Index)
	assert.EqualError(t, err, "item 1: table not found")
	assert.Len(t, records, 2)
	assert.Equal(t, []string{"a", "b"}, exec.calls, "later statements must not run")
}

func TestRunBatch_EmptyResultProducesNoRecords(t *testing.T) {
	exec := newScripted()

	records, err := RunBatch(context.Background(), exec, []string{"empty", "c"}, BatchOptions{})
	require.NoError(t, err)
	assert.Equal(t, []Record{{Item: 1, JSON: Row{"n": 3}}}, records)
}

func TestRunBatch_Empty(t *testing.T) {
	records, err := RunBatch(context.Background(), newScripted(), nil, BatchOptions{})
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestRunBatch_CanceledContextAbortsEvenWhenContinuing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	exec := ExecutorFunc(func(_ context.Context, sql string) (*Result, error) {
		cancel()
		return nil, context.Canceled
	})

	records, err := RunBatch(ctx, exec, []string{"a", "b"}, BatchOptions{ContinueOnFail: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, records)
}

func TestResult_RowCount(t *testing.T) {
	assert.Equal(t, 0, (*Result)(nil).RowCount())
	assert.Equal(t, 2, (&Result{Rows: []Row{{}, {}}}).RowCount())
}
