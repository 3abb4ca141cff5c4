package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/mcp-dremio/pkg/audit"
)

var breakdownColumns = []string{"dimension", "count", "success_rate", "avg_duration_ms"}

func TestBreakdown_Success(t *testing.T) {
	store, mock := newMockStore(t)

	rows := sqlmock.NewRows(breakdownColumns).
		AddRow("dremio_query", 12, 0.75, 310.5).
		AddRow("dremio_batch_query", 3, 1.0, 920.0)
	mock.ExpectQuery(`SELECT COALESCE\(tool_name, ''\) AS dimension`).WillReturnRows(rows)

	entries, err := store.Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: audit.BreakdownByToolName})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, audit.BreakdownEntry{Dimension: "dremio_query", Count: 12, SuccessRate: 0.75, AvgDurationMS: 310.5}, entries[0])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBreakdown_ErrorKindOnlyCountsFailures(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`COALESCE\(error_kind, ''\) AS dimension.+AND success = \$3`).
		WillReturnRows(sqlmock.NewRows(breakdownColumns).AddRow("transport", 2, 0.0, 15.0))

	entries, err := store.Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: audit.BreakdownByErrorKind})
	require.NoError(t, err)
	assert.Equal(t, "transport", entries[0].Dimension)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBreakdown_ByClient(t *testing.T) {
	store, mock := newMockStore(t)
	rows := sqlmock.NewRows(breakdownColumns).AddRow("ci", 4, 1.0, 95.0)
	mock.ExpectQuery(`SELECT COALESCE\(client, ''\) AS dimension`).WillReturnRows(rows)

	entries, err := store.Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: audit.BreakdownByClient})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ci", entries[0].Dimension)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBreakdown_InvalidDimension(t *testing.T) {
	store, _ := newMockStore(t)

	_, err := store.Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: "user_id; DROP TABLE x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid breakdown dimension")
}

func TestBreakdown_EmptyResult(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM query_audit_logs").WillReturnRows(sqlmock.NewRows(breakdownColumns))

	entries, err := store.Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: audit.BreakdownByConnection})
	require.NoError(t, err)
	assert.NotNil(t, entries)
	assert.Empty(t, entries)
}

func TestBreakdown_QueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM query_audit_logs").WillReturnError(errors.New("timeout"))

	_, err := store.Breakdown(context.Background(), audit.BreakdownFilter{GroupBy: audit.BreakdownByToolName})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying breakdown")
}

func TestClampBreakdownLimit(t *testing.T) {
	assert.Equal(t, defaultBreakdownLimit, clampBreakdownLimit(0))
	assert.Equal(t, defaultBreakdownLimit, clampBreakdownLimit(-3))
	assert.Equal(t, 25, clampBreakdownLimit(25))
	assert.Equal(t, maxBreakdownLimit, clampBreakdownLimit(5000))
}

func TestOverview_Success(t *testing.T) {
	store, mock := newMockStore(t)

	start := time.Date(testYear, testMonth, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(24 * time.Hour)

	mock.ExpectQuery(`SELECT COUNT\(\*\) AS total_statements`).
		WithArgs(start, end).
		WillReturnRows(sqlmock.NewRows([]string{
			"total_statements", "success_rate", "avg_duration_ms", "total_rows", "unique_jobs", "error_count",
		}).AddRow(20, 0.9, 125.5, 4000, 18, 2))

	o, err := store.Overview(context.Background(), &start, &end)
	require.NoError(t, err)
	assert.Equal(t, &audit.Overview{
		TotalStatements: 20,
		SuccessRate:     0.9,
		AvgDurationMS:   125.5,
		TotalRows:       4000,
		UniqueJobs:      18,
		ErrorCount:      2,
	}, o)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOverview_QueryError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT .+ FROM query_audit_logs").WillReturnError(errors.New("down"))

	_, err := store.Overview(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "querying overview")
}

func TestDefaultTimeRange(t *testing.T) {
	start, end := defaultTimeRange(nil, nil)
	assert.InDelta(t, defaultMetricsWindow.Seconds(), end.Sub(start).Seconds(), 1)

	s := time.Date(testYear, 1, 1, 0, 0, 0, 0, time.UTC)
	e := time.Date(testYear, 2, 1, 0, 0, 0, 0, time.UTC)
	gotStart, gotEnd := defaultTimeRange(&s, &e)
	assert.Equal(t, s, gotStart)
	assert.Equal(t, e, gotEnd)
}
