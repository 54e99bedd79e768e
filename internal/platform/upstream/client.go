// Package upstream is the HTTP transport to the clinic data API that serves
// schemas, record collections and write endpoints.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// RequestIDHeader is forwarded on every upstream call when the context
// carries a request id.
const RequestIDHeader = "X-Request-ID"

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Status)
}

// StatusDescription returns the upstream status line, e.g. "404 Not Found".
func (e *StatusError) StatusDescription() string {
	return e.Status
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithTimeout sets the per-call timeout. It works on a copy of the HTTP
// client so a client passed to WithHTTPClient is left untouched.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		hc := *cl.http
		hc.Timeout = d
		cl.http = &hc
	}
}

// WithLogger sets the logger used for per-call debug events.
func WithLogger(l zerolog.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithRequestID sets how the request id of the current call is read from
// its context.
func WithRequestID(fn func(context.Context) string) Option {
	return func(cl *Client) { cl.requestID = fn }
}

// Client performs plain JSON request/response calls against a fixed base
// URL.
type Client struct {
	baseURL   string
	http      *http.Client
	logger    zerolog.Logger
	requestID func(context.Context) string
}

func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// URL joins path to the base URL.
func (c *Client) URL(path string) string {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// GetJSON fetches path and decodes the JSON response into v.
func (c *Client) GetJSON(ctx context.Context, path string, v interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, v)
}

// SendJSON encodes body as JSON and sends it with method. A nil v discards
// the response body.
func (c *Client) SendJSON(ctx context.Context, method, path string, body, v interface{}) error {
	return c.do(ctx, method, path, body, v)
}

// Delete issues a DELETE for path.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

// Ping reports whether the upstream answers HTTP at all. Any status code
// counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("build ping request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("upstream unreachable: %w", err)
	}
	io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))
	resp.Body.Close()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body, v interface{}) error {
	url := c.URL(path)

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, url, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, url, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.requestID != nil {
		if rid := c.requestID(ctx); rid != "" {
			req.Header.Set(RequestIDHeader, rid)
		}
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	c.logger.Debug().
		Str("method", method).
		Str("url", url).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("upstream call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{
			Method:     method,
			URL:        url,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(snippet),
		}
	}

	if v == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, url, err)
	}
	return nil
}
