package dremio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/txn2/mcp-dremio/pkg/query"
)

// Operation names used in errors and logs.
const (
	opSubmit = "submit"
	opStatus = "status"
	opFetch  = "fetch"
	opPing   = "ping"
)

const userAgent = "mcp-dremio"

// MaxPageSize is the largest limit the results endpoint accepts.
const MaxPageSize = 500

// Client executes SQL statements against one Dremio deployment. It holds no
// per-query state; every ExecuteQuery call is an independent
// submit, poll, fetch run.
type Client struct {
	profile   Profile
	endpoints Endpoints
	transport Transport
	poll      PollPolicy
	pageSize  int
	logger    *slog.Logger

	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithTransport replaces the default net/http transport.
func WithTransport(t Transport) Option {
	return func(c *Client) {
		if t != nil {
			c.transport = t
		}
	}
}

// WithPollPolicy sets the polling interval and bounds.
func WithPollPolicy(p PollPolicy) Option {
	return func(c *Client) {
		c.poll = p
	}
}

// WithPageSize enables paginated result fetching. Zero fetches with a single
// request and pages only when the server truncates. Sizes above MaxPageSize
// are capped.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = min(n, MaxPageSize)
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New validates the profile and creates a Client. Profile problems are
// reported as *ConfigurationError before any network call is made.
func New(profile Profile, opts ...Option) (*Client, error) {
	if err := profile.Validate(); err != nil {
		return nil, err
	}
	endpoints, err := Resolve(profile)
	if err != nil {
		return nil, err
	}

	c := &Client{
		profile:   profile,
		endpoints: endpoints,
		poll:      DefaultPollPolicy(),
		logger:    slog.Default(),
		sleep:     sleepContext,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(defaultRequestTimeout)
	}
	return c, nil
}

// Profile returns the connection profile.
func (c *Client) Profile() Profile {
	return c.profile
}

// Endpoints returns the resolved endpoints.
func (c *Client) Endpoints() Endpoints {
	return c.endpoints
}

// submitRequest is the body of POST /sql.
type submitRequest struct {
	SQL string `json:"sql"`
}

// submitResponse is the body returned by POST /sql.
type submitResponse struct {
	ID string `json:"id"`
}

// jobStatusResponse is the body returned by GET /job/{id}.
type jobStatusResponse struct {
	JobState           string `json:"jobState"`
	RowCount           *int64 `json:"rowCount"`
	ErrorMessage       string `json:"errorMessage"`
	CancellationReason string `json:"cancellationReason"`
}

// jobResultsResponse is the body returned by GET /job/{id}/results.
type jobResultsResponse struct {
	RowCount *int64          `json:"rowCount"`
	Schema   json.RawMessage `json:"schema"`
	Rows     json.RawMessage `json:"rows"`
}

// ExecuteQuery submits sql, waits for the job to finish and returns its rows.
// Failures are one of *ConfigurationError, *TransportError, *ProtocolError,
// *JobFailedError or *PollingTimeoutError, or a wrapped context error.
func (c *Client) ExecuteQuery(ctx context.Context, sql string) (*query.Result, error) {
	if strings.TrimSpace(sql) == "" {
		return nil, &ConfigurationError{Field: "sql", Reason: "statement is empty"}
	}

	start := c.now()

	jobID, err := c.submit(ctx, sql)
	if err != nil {
		return nil, err
	}

	if err := c.waitForCompletion(ctx, jobID); err != nil {
		return nil, err
	}

	result, err := c.fetchResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	result.Duration = c.now().Sub(start)

	c.logger.Info("dremio query completed",
		"job_id", jobID,
		"rows", len(result.Rows),
		"duration", result.Duration)

	return result, nil
}

// Ping checks connectivity and credentials against the catalog endpoint.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, opPing, http.MethodGet, c.endpoints.Catalog(), nil, nil)
}

func (c *Client) submit(ctx context.Context, sql string) (string, error) {
	url := c.endpoints.Submit()

	var resp submitResponse
	if err := c.do(ctx, opSubmit, http.MethodPost, url, submitRequest{SQL: sql}, &resp); err != nil {
		return "", err
	}
	if resp.ID == "" {
		return "", &ProtocolError{Op: opSubmit, Field: "id", Reason: "job id missing from submit response"}
	}

	c.logger.Info("dremio job submitted", "job_id", resp.ID, "url", url)
	return resp.ID, nil
}

// waitForCompletion polls the job status until a terminal state is reached
// or the poll policy is exhausted. It sleeps before every status request,
// including the first.
func (c *Client) waitForCompletion(ctx context.Context, jobID string) error {
	start := c.now()
	lastState := JobStatus("")
	observer := StateObserverFromContext(ctx)

	for attempt := 0; ; attempt++ {
		if elapsed := c.now().Sub(start); c.poll.exhausted(attempt, elapsed) {
			c.logger.Warn("dremio job polling gave up",
				"job_id", jobID, "attempts", attempt, "elapsed", elapsed, "state", lastState)
			return &PollingTimeoutError{JobID: jobID, Attempts: attempt, Elapsed: elapsed, LastState: lastState}
		}

		if err := c.sleep(ctx, c.poll.Interval); err != nil {
			return fmt.Errorf("waiting for dremio job %s: %w", jobID, err)
		}

		var status jobStatusResponse
		if err := c.do(ctx, opStatus, http.MethodGet, c.endpoints.Status(jobID), nil, &status); err != nil {
			return err
		}

		state, err := ParseJobStatus(status.JobState)
		if err != nil {
			return &ProtocolError{Op: opStatus, Field: "jobState", Err: err}
		}
		lastState = state

		c.logger.Debug("dremio job status", "job_id", jobID, "attempt", attempt+1, "state", state)
		if observer != nil {
			observer(jobID, attempt+1, state)
		}

		switch {
		case state == JobCompleted:
			return nil
		case state.IsFailure():
			msg := status.ErrorMessage
			if msg == "" {
				msg = status.CancellationReason
			}
			c.logger.Warn("dremio job did not complete", "job_id", jobID, "state", state, "error", msg)
			return &JobFailedError{JobID: jobID, State: state, Message: msg}
		}
	}
}

// fetchResults reads the job's rows. Without a page size it issues a single
// request and only pages when the server returned fewer rows than the job
// produced.
func (c *Client) fetchResults(ctx context.Context, jobID string) (*query.Result, error) {
	result := &query.Result{JobID: jobID, Rows: []query.Row{}}
	pageSize := c.pageSize

	if pageSize <= 0 {
		page, err := c.fetchPage(ctx, c.endpoints.Results(jobID))
		if err != nil {
			return nil, err
		}
		result.Columns = page.columns
		result.Rows = page.rows
		if page.rowCount < 0 || int64(len(page.rows)) >= page.rowCount || len(page.rows) == 0 {
			return result, nil
		}
		c.logger.Debug("dremio results truncated, paging",
			"job_id", jobID, "returned", len(page.rows), "row_count", page.rowCount)
		pageSize = MaxPageSize
	}

	for offset := len(result.Rows); ; {
		page, err := c.fetchPage(ctx, c.endpoints.ResultsPage(jobID, offset, pageSize))
		if err != nil {
			return nil, err
		}
		if result.Columns == nil {
			result.Columns = page.columns
		}
		result.Rows = append(result.Rows, page.rows...)
		offset += len(page.rows)

		switch {
		case len(page.rows) == 0:
			if page.rowCount > int64(offset) {
				c.logger.Warn("dremio returned fewer rows than reported",
					"job_id", jobID, "rows", offset, "row_count", page.rowCount)
			}
			return result, nil
		case page.rowCount >= 0:
			if int64(offset) >= page.rowCount {
				return result, nil
			}
		case len(page.rows) < pageSize:
			return result, nil
		}
	}
}

// resultPage is one normalized results response.
type resultPage struct {
	rows     []query.Row
	columns  []query.Column
	rowCount int64 // -1 when the server omitted it
}

func (c *Client) fetchPage(ctx context.Context, url string) (*resultPage, error) {
	var resp jobResultsResponse
	if err := c.do(ctx, opFetch, http.MethodGet, url, nil, &resp); err != nil {
		return nil, err
	}

	rows, err := Normalize(resp.Rows)
	if err != nil {
		return nil, err
	}

	page := &resultPage{rows: rows, columns: normalizeSchema(resp.Schema), rowCount: -1}
	if resp.RowCount != nil {
		page.rowCount = *resp.RowCount
	}
	return page, nil
}

// do performs one JSON exchange. A nil out discards the response body.
func (c *Client) do(ctx context.Context, op, method, url string, in, out any) error {
	var body []byte
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("dremio %s: encoding request: %w", op, err)
		}
		body = data
	}

	resp, err := c.transport.Do(ctx, &Request{
		Method:             method,
		URL:                url,
		Header:             c.headers(),
		Body:               body,
		InsecureSkipVerify: c.profile.SkipTLSVerify,
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("dremio %s: %w", op, ctxErr)
		}
		return &TransportError{Op: op, Method: method, URL: url, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return &TransportError{
			Op:         op,
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Body:       string(resp.Body),
		}
	}

	if out == nil {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(resp.Body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return &ProtocolError{Op: op, Reason: "decoding response body", Err: err}
	}
	return nil
}

func (c *Client) headers() http.Header {
	h := make(http.Header, 4)
	h.Set("Authorization", "Bearer "+c.profile.Token)
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	h.Set("User-Agent", userAgent)
	return h
}

// Verify interface compliance.
var _ query.Executor = (*Client)(nil)
