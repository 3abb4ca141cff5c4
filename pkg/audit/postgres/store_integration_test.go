//go:build integration

package postgres

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/txn2/mcp-dremio/pkg/audit"
	"github.com/txn2/mcp-dremio/pkg/database/migrate"
)

func TestStore_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}

	ctx := context.Background()

	pgContainer, err := tcpostgres.Run(ctx, "postgres:15",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	defer func() { _ = pgContainer.Terminate(ctx) }()

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	require.NoError(t, migrate.Run(db))

	store := New(db, Config{RetentionDays: 7})
	defer func() { _ = store.Close() }()

	ok := audit.NewEvent("dremio_query").
		WithRequestID("req-1").
		WithConnection("lakehouse").
		WithSQL("SELECT 1").
		WithResult("job-1", 1, 120*time.Millisecond)
	failed := audit.NewEvent("dremio_batch_query").
		WithRequestID("req-2").
		WithConnection("lakehouse").
		WithSQL("SELECT * FROM missing").
		WithError("job_failed", "table not found", 80*time.Millisecond)
	expired := audit.NewEvent("dremio_query").WithSQL("SELECT 0").WithResult("job-0", 0, time.Millisecond)
	expired.Timestamp = time.Now().UTC().AddDate(0, 0, -30)

	for _, e := range []*audit.Event{ok, failed, expired} {
		require.NoError(t, store.Log(ctx, *e))
	}

	t.Run("Query filters by request", func(t *testing.T) {
		events, err := store.Query(ctx, audit.QueryFilter{RequestID: "req-1"})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, "job-1", events[0].JobID)
		assert.True(t, events[0].Success)
		assert.Equal(t, int64(120), events[0].DurationMS)
	})

	t.Run("Count failures", func(t *testing.T) {
		success := false
		n, err := store.Count(ctx, audit.QueryFilter{Success: &success})
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("Overview and breakdown", func(t *testing.T) {
		ov, err := store.Overview(ctx, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, 2, ov.TotalStatements)
		assert.Equal(t, 1, ov.ErrorCount)

		entries, err := store.Breakdown(ctx, audit.BreakdownFilter{GroupBy: audit.BreakdownByErrorKind})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "job_failed", entries[0].Dimension)
	})

	t.Run("Cleanup removes expired events", func(t *testing.T) {
		deleted, err := store.Cleanup(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), deleted)

		n, err := store.Count(ctx, audit.QueryFilter{})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
