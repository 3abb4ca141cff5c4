package dremio

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// defaultRequestTimeout bounds a single HTTP exchange, not a whole query.
	defaultRequestTimeout = 60 * time.Second

	// maxResponseBytes caps how much of a response body is buffered.
	maxResponseBytes = 256 << 20
)

// Request is one HTTP exchange with the Dremio REST API.
type Request struct {
	Method             string
	URL                string
	Header             http.Header
	Body               []byte
	InsecureSkipVerify bool
}

// Response is the buffered result of a Request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Transport performs HTTP exchanges for a Client. Implementations must honor
// ctx cancellation and the InsecureSkipVerify flag.
type Transport interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*Response, error)

// Do calls f(ctx, req).
func (f TransportFunc) Do(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

// HTTPTransport is the net/http Transport. It keeps one client per TLS mode
// so connection pools are never shared between verified and unverified calls.
type HTTPTransport struct {
	verified   *http.Client
	unverified *http.Client
}

// NewHTTPTransport creates an HTTPTransport with a per-request timeout.
// A zero timeout uses the default of 60s.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	verified := http.DefaultTransport.(*http.Transport).Clone()
	unverified := http.DefaultTransport.(*http.Transport).Clone()
	unverified.TLSClientConfig = &tls.Config{
		InsecureSkipVerify: true, // #nosec G402 -- opt-in per connection profile for self-signed deployments
	}

	return &HTTPTransport{
		verified:   &http.Client{Transport: verified, Timeout: timeout},
		unverified: &http.Client{Transport: unverified, Timeout: timeout},
	}
}

// Do sends the request and buffers the response body.
func (t *HTTPTransport) Do(ctx context.Context, req *Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	client := t.verified
	if req.InsecureSkipVerify {
		client = t.unverified
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	if len(data) > maxResponseBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", maxResponseBytes)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Verify interface compliance.
var _ Transport = (*HTTPTransport)(nil)
