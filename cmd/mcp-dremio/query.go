package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/txn2/mcp-dremio/pkg/query"
)

// cliSource is recorded as the tool name of statements run from the CLI.
const cliSource = "cli"

type queryOptions struct {
	continueOnFail bool
}

// queryOutput is printed for a single statement.
type queryOutput struct {
	JobID      string         `json:"job_id"`
	RowCount   int            `json:"row_count"`
	Columns    []query.Column `json:"columns,omitempty"`
	Rows       []query.Row    `json:"rows"`
	DurationMS int64          `json:"duration_ms"`
}

func newQueryCommand(rootOpts *rootOptions) *cobra.Command {
	qo := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query <sql> [sql...]",
		Short: "Run SQL statements and print the rows as JSON",
		Long: `Run one or more SQL statements on Dremio and print the results as JSON.

A single statement prints its rows. Several statements run strictly one after
another and print one record per row tagged with the statement index. Use "-"
to read a statement from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd, rootOpts, qo, args)
		},
	}

	cmd.Flags().BoolVar(&qo.continueOnFail, "continue-on-fail", false, "record a failing statement as an error record and keep going")

	return cmd
}

func runQuery(cmd *cobra.Command, rootOpts *rootOptions, qo *queryOptions, args []string) error {
	statements, err := readStatements(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}

	p, err := rootOpts.openPlatform()
	if err != nil {
		return err
	}
	defer func() { _ = p.Close() }()

	exec := p.Toolkit().Executor(cliSource)
	out := cmd.OutOrStdout()

	if len(statements) == 1 {
		result, err := exec.ExecuteQuery(cmd.Context(), statements[0])
		if err != nil {
			return err
		}
		rows := result.Rows
		if rows == nil {
			rows = []query.Row{}
		}
		return writeJSON(out, queryOutput{
			JobID:      result.JobID,
			RowCount:   len(rows),
			Columns:    result.Columns,
			Rows:       rows,
			DurationMS: result.Duration.Milliseconds(),
		})
	}

	records, err := query.RunBatch(cmd.Context(), exec, statements, query.BatchOptions{ContinueOnFail: qo.continueOnFail})
	if err != nil {
		if len(records) > 0 {
			_ = writeJSON(out, records)
		}
		return err
	}
	return writeJSON(out, records)
}

// readStatements replaces a "-" argument with the contents of stdin.
func readStatements(stdin io.Reader, args []string) ([]string, error) {
	statements := make([]string, 0, len(args))
	usedStdin := false
	for _, arg := range args {
		if arg != "-" {
			statements = append(statements, arg)
			continue
		}
		if usedStdin {
			return nil, fmt.Errorf("stdin can only be read once")
		}
		usedStdin = true
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("reading stdin: %w", err)
		}
		statements = append(statements, strings.TrimSpace(string(data)))
	}
	return statements, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding output: %w", err)
	}
	return nil
}
