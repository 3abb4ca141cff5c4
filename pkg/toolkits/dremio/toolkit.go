// Package dremio exposes a Dremio connection to MCP clients as tools.
package dremio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/mcp-dremio/pkg/audit"
	dremioclient "github.com/txn2/mcp-dremio/pkg/dremio"
	"github.com/txn2/mcp-dremio/pkg/query"
)

const (
	// ToolQuery runs a single statement.
	ToolQuery = "dremio_query"

	// ToolBatchQuery runs statements sequentially.
	ToolBatchQuery = "dremio_batch_query"

	// ToolTestConnection checks connectivity and credentials.
	ToolTestConnection = "dremio_test_connection"

	// defaultRequestTimeout bounds a single HTTP exchange with Dremio.
	defaultRequestTimeout = 60 * time.Second

	// defaultConnectionName is used when neither the config nor the toolkit
	// name provides one.
	defaultConnectionName = "dremio"
)

// Config holds Dremio toolkit configuration.
type Config struct {
	Type            string            `yaml:"type"`
	BaseURL         string            `yaml:"base_url"`
	ProjectID       string            `yaml:"project_id"`
	Token           string            `yaml:"token"`
	SkipTLSVerify   bool              `yaml:"skip_tls_verify"`
	PollInterval    time.Duration     `yaml:"poll_interval"`
	MaxPollAttempts int               `yaml:"max_poll_attempts"`
	MaxPollDuration time.Duration     `yaml:"max_poll_duration"`
	RequestTimeout  time.Duration     `yaml:"request_timeout"`
	PageSize        int               `yaml:"page_size"`
	ReadOnly        bool              `yaml:"read_only"`
	ContinueOnFail  bool              `yaml:"continue_on_fail"`
	ConnectionName  string            `yaml:"connection_name"`
	Descriptions    map[string]string `yaml:"descriptions"`
}

// Client is the part of *dremioclient.Client used by the toolkit.
type Client interface {
	query.Executor
	Ping(ctx context.Context) error
}

// Toolkit wraps a Dremio client for the MCP server.
type Toolkit struct {
	name    string
	config  Config
	client  Client
	auditor audit.Logger
	logger  *slog.Logger
	now     func() time.Time

	// identify names the caller of an MCP request from its HTTP headers.
	identify func(http.Header) string
}

// New creates a Dremio toolkit. Profile problems are reported as
// *dremioclient.ConfigurationError.
func New(name string, cfg Config, logger *slog.Logger) (*Toolkit, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = applyDefaults(name, cfg)

	client, err := dremioclient.New(cfg.Profile(), cfg.ClientOptions(logger)...)
	if err != nil {
		return nil, fmt.Errorf("creating dremio client: %w", err)
	}

	return NewWithClient(name, cfg, client, logger), nil
}

// NewWithClient creates a toolkit around an existing client.
func NewWithClient(name string, cfg Config, client Client, logger *slog.Logger) *Toolkit {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolkit{
		name:    name,
		config:  applyDefaults(name, cfg),
		client:  client,
		auditor: audit.NoopLogger{},
		logger:  logger,
		now:     time.Now,
	}
}

// applyDefaults applies default values to the configuration.
func applyDefaults(name string, cfg Config) Config {
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	if cfg.ConnectionName == "" {
		cfg.ConnectionName = name
	}
	if cfg.ConnectionName == "" {
		cfg.ConnectionName = defaultConnectionName
	}
	return cfg
}

// Kind returns the toolkit kind.
func (*Toolkit) Kind() string {
	return "dremio"
}

// Name returns the toolkit instance name.
func (t *Toolkit) Name() string {
	return t.name
}

// Connection returns the connection name for audit logging.
func (t *Toolkit) Connection() string {
	return t.config.ConnectionName
}

// Config returns the toolkit configuration.
func (t *Toolkit) Config() Config {
	return t.config
}

// Client returns the underlying Dremio client.
func (t *Toolkit) Client() Client {
	return t.client
}

// SetAuditLogger sets the audit logger. A nil logger disables auditing.
func (t *Toolkit) SetAuditLogger(l audit.Logger) {
	if l == nil {
		l = audit.NoopLogger{}
	}
	t.auditor = l
}

// SetCallerIdentifier sets the function that names the caller of a tool call
// from the HTTP headers of the request. The name is recorded on audit events.
func (t *Toolkit) SetCallerIdentifier(fn func(http.Header) string) {
	t.identify = fn
}

// caller returns the name of the client that issued req, or "".
func (t *Toolkit) caller(req *mcp.CallToolRequest) string {
	if t.identify == nil || req == nil || req.Extra == nil || req.Extra.Header == nil {
		return ""
	}
	return t.identify(req.Extra.Header)
}

// Tools returns the names of the tools provided by this toolkit.
func (*Toolkit) Tools() []string {
	return []string{ToolQuery, ToolBatchQuery, ToolTestConnection}
}

// Close releases resources.
func (*Toolkit) Close() error {
	return nil
}

// queryInput is the input schema of dremio_query.
type queryInput struct {
	SQL string `json:"sql" jsonschema:"SQL statement to run on Dremio"`
}

// queryOutput is the JSON result of dremio_query.
type queryOutput struct {
	JobID      string         `json:"job_id"`
	RowCount   int            `json:"row_count"`
	Columns    []query.Column `json:"columns,omitempty"`
	Rows       []query.Row    `json:"rows"`
	DurationMS int64          `json:"duration_ms"`
}

// batchInput is the input schema of dremio_batch_query.
type batchInput struct {
	Statements     []string `json:"statements" jsonschema:"SQL statements, run one after another"`
	ContinueOnFail *bool    `json:"continue_on_fail,omitempty" jsonschema:"record a failing statement as an error record and keep going"`
}

// batchOutput is the JSON result of dremio_batch_query.
type batchOutput struct {
	Records []query.Record `json:"records"`
	Count   int            `json:"count"`
}

// testConnectionInput is empty since this tool has no parameters.
type testConnectionInput struct{}

// errorOutput is the JSON body of a failed tool call.
type errorOutput struct {
	Error   string         `json:"error"`
	Kind    string         `json:"kind"`
	Item    *int           `json:"item,omitempty"`
	Records []query.Record `json:"records,omitempty"`
}

// RegisterTools registers the Dremio tools with the MCP server.
func (t *Toolkit) RegisterTools(s *mcp.Server) {
	mcp.AddTool(s, &mcp.Tool{
		Name: ToolQuery,
		Description: t.description(ToolQuery,
			"Run one SQL statement on Dremio and return its rows as JSON. "+
				"The statement is submitted as a job and polled until it finishes."),
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: t.config.ReadOnly, OpenWorldHint: ptr(true)},
	}, t.handleQuery)

	mcp.AddTool(s, &mcp.Tool{
		Name: ToolBatchQuery,
		Description: t.description(ToolBatchQuery,
			"Run several SQL statements on Dremio strictly one after another. "+
				"Returns one record per row tagged with the index of its statement."),
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: t.config.ReadOnly, OpenWorldHint: ptr(true)},
	}, t.handleBatchQuery)

	mcp.AddTool(s, &mcp.Tool{
		Name:        ToolTestConnection,
		Description: t.description(ToolTestConnection, "Check that the Dremio endpoint is reachable and the access token is accepted."),
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true, IdempotentHint: true},
	}, t.handleTestConnection)
}

func (t *Toolkit) description(tool, fallback string) string {
	if d, ok := t.config.Descriptions[tool]; ok && d != "" {
		return d
	}
	return fallback
}

// executor builds the per-call execution chain: audit, then read-only guard,
// then the client.
func (t *Toolkit) executor(toolName, requestID, client string) query.Executor {
	var exec query.Executor = t.client
	if t.config.ReadOnly {
		exec = readOnlyExecutor{next: exec}
	}
	return auditedExecutor{
		next:       exec,
		auditor:    t.auditor,
		logger:     t.logger,
		toolName:   toolName,
		requestID:  requestID,
		client:     client,
		connection: t.config.ConnectionName,
		now:        t.now,
	}
}

// Executor returns the audited execution chain for statements issued outside
// MCP, such as from the command line. source is recorded as the tool name.
func (t *Toolkit) Executor(source string) query.Executor {
	return t.executor(source, uuid.NewString(), "")
}

func (t *Toolkit) handleQuery(ctx context.Context, req *mcp.CallToolRequest, input queryInput) (*mcp.CallToolResult, any, error) {
	requestID := uuid.NewString()
	ctx = withProgress(ctx, req)

	result, err := t.executor(ToolQuery, requestID, t.caller(req)).ExecuteQuery(ctx, input.SQL)
	if err != nil {
		t.logger.Warn("dremio_query failed", "request_id", requestID, "kind", dremioclient.Kind(err), "error", err)
		return errorResult(errorOutput{Error: err.Error(), Kind: dremioclient.Kind(err)}), nil, nil
	}

	rows := result.Rows
	if rows == nil {
		rows = []query.Row{}
	}
	return jsonResult(queryOutput{
		JobID:      result.JobID,
		RowCount:   len(rows),
		Columns:    result.Columns,
		Rows:       rows,
		DurationMS: result.Duration.Milliseconds(),
	}), nil, nil
}

func (t *Toolkit) handleBatchQuery(ctx context.Context, req *mcp.CallToolRequest, input batchInput) (*mcp.CallToolResult, any, error) {
	if len(input.Statements) == 0 {
		err := &dremioclient.ConfigurationError{Field: "statements", Reason: "at least one statement is required"}
		return errorResult(errorOutput{Error: err.Error(), Kind: dremioclient.KindConfiguration}), nil, nil
	}

	opts := query.BatchOptions{ContinueOnFail: t.config.ContinueOnFail}
	if input.ContinueOnFail != nil {
		opts.ContinueOnFail = *input.ContinueOnFail
	}

	requestID := uuid.NewString()
	ctx = withProgress(ctx, req)

	records, err := query.RunBatch(ctx, t.executor(ToolBatchQuery, requestID, t.caller(req)), input.Statements, opts)
	if err != nil {
		out := errorOutput{Error: err.Error(), Kind: dremioclient.Kind(err), Records: records}
		var itemErr *query.ItemError
		if errors.As(err, &itemErr) {
			out.Item = &itemErr.Index
		}
		t.logger.Warn("dremio_batch_query aborted", "request_id", requestID, "kind", out.Kind, "error", err)
		return errorResult(out), nil, nil
	}

	return jsonResult(batchOutput{Records: records, Count: len(records)}), nil, nil
}

func (t *Toolkit) handleTestConnection(ctx context.Context, _ *mcp.CallToolRequest, _ testConnectionInput) (*mcp.CallToolResult, any, error) {
	if err := t.client.Ping(ctx); err != nil {
		return errorResult(errorOutput{Error: err.Error(), Kind: dremioclient.Kind(err)}), nil, nil
	}
	return jsonResult(map[string]string{
		"status":     "ok",
		"connection": t.config.ConnectionName,
	}), nil, nil
}

// jsonResult renders v as indented JSON text content.
func jsonResult(v any) *mcp.CallToolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(errorOutput{Error: "encoding result: " + err.Error(), Kind: dremioclient.KindUnknown})
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}
}

// errorResult renders a tool failure. MCP tool errors are reported in
// CallToolResult.IsError, not as Go errors.
func errorResult(out errorOutput) *mcp.CallToolResult {
	data, err := json.Marshal(out)
	if err != nil {
		data = []byte(`{"error":"encoding error result","kind":"unknown"}`)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
		IsError: true,
	}
}

func ptr[T any](v T) *T {
	return &v
}

// Verify interface compliance.
var (
	_ Client = (*dremioclient.Client)(nil)
	_ interface {
		Kind() string
		Name() string
		Connection() string
		RegisterTools(s *mcp.Server)
		Tools() []string
		Close() error
	} = (*Toolkit)(nil)
)
