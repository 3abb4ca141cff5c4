package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/txn2/mcp-dremio/pkg/audit"
	auditpg "github.com/txn2/mcp-dremio/pkg/audit/postgres"
)

var errAuditDisabled = errors.New("audit trail is disabled: set database.dsn or MCP_DREMIO_DATABASE_DSN")

type auditOptions struct {
	since time.Duration
	by    string
	limit int
}

func newAuditCommand(rootOpts *rootOptions) *cobra.Command {
	ao := &auditOptions{}

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Summarize the audit trail of executed statements",
	}
	cmd.PersistentFlags().DurationVar(&ao.since, "since", 24*time.Hour, "time window to summarize")

	overview := &cobra.Command{
		Use:   "overview",
		Short: "Print totals for the time window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withAuditStore(rootOpts, func(store *auditpg.Store) error {
				start, end := ao.window()
				ov, err := store.Overview(cmd.Context(), &start, &end)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), ov)
			})
		},
	}

	breakdown := &cobra.Command{
		Use:   "breakdown",
		Short: "Group statements by tool, API key, connection or error kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dim := audit.BreakdownDimension(ao.by)
			if !audit.ValidBreakdownDimensions[dim] {
				return fmt.Errorf("invalid --by %q: must be one of tool_name, client, connection, error_kind", ao.by)
			}
			return withAuditStore(rootOpts, func(store *auditpg.Store) error {
				start, end := ao.window()
				entries, err := store.Breakdown(cmd.Context(), audit.BreakdownFilter{
					GroupBy:   dim,
					Limit:     ao.limit,
					StartTime: &start,
					EndTime:   &end,
				})
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), entries)
			})
		},
	}
	breakdown.Flags().StringVar(&ao.by, "by", string(audit.BreakdownByToolName), "dimension (tool_name|client|connection|error_kind)")
	breakdown.Flags().IntVar(&ao.limit, "limit", 10, "maximum number of groups")

	cmd.AddCommand(overview, breakdown)
	return cmd
}

func (ao *auditOptions) window() (start, end time.Time) {
	end = time.Now().UTC()
	return end.Add(-ao.since), end
}

func withAuditStore(rootOpts *rootOptions, fn func(*auditpg.Store) error) error {
	p, err := rootOpts.openPlatform()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	store := p.AuditStore()
	if store == nil {
		return errAuditDisabled
	}
	return fn(store)
}
