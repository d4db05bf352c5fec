package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ClientOption configures Client.
type ClientOption func(*Client)

// RequestOptions holds HTTP request parameters.
type RequestOptions struct {
	Method      string
	URL         string
	Headers     map[string]string
	QueryParams map[string][]string
	Body        any
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Retryable reports whether a repeat of the request may succeed.
func (e *StatusError) Retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests
}

// Client wraps net/http with JSON helpers and bounded retries.
type Client struct {
	timeout  time.Duration
	headers  map[string]string
	attempts int
	backoff  time.Duration
	client   *http.Client
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		timeout:  30 * time.Second,
		headers:  map[string]string{},
		attempts: 1,
		backoff:  50 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.client = &http.Client{Timeout: c.timeout}
	return c
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.headers[key] = value }
}

// WithRetry retries transport failures and retryable statuses. The wait
// before attempt i is i*backoff.
func WithRetry(attempts int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		if attempts > 0 {
			c.attempts = attempts
		}
		if backoff > 0 {
			c.backoff = backoff
		}
	}
}

// PostJSON posts payload to url and decodes the JSON reply into dest.
func (c *Client) PostJSON(ctx context.Context, url string, payload, dest any) error {
	return c.SendAndParse(ctx, &RequestOptions{Method: http.MethodPost, URL: url, Body: payload}, dest)
}

// SendAndParse sends the request, retrying when allowed, and decodes the
// body into dest. dest may be nil or *[]byte.
func (c *Client) SendAndParse(ctx context.Context, opts *RequestOptions, dest any) error {
	body, err := encodeBody(opts.Body)
	if err != nil {
		return err
	}
	var lastErr error
	for i := 1; i <= c.attempts; i++ {
		if i > 1 {
			select {
			case <-time.After(time.Duration(i-1) * c.backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		lastErr = c.once(ctx, opts, body, dest)
		if lastErr == nil || !retryable(lastErr) || ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, opts *RequestOptions, body []byte, dest any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, opts.Method, opts.URL, reader)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	if len(opts.QueryParams) > 0 {
		q := req.URL.Query()
		for key, values := range opts.QueryParams {
			for _, v := range values {
				q.Add(key, v)
			}
		}
		req.URL.RawQuery = q.Encode()
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: string(b)}
	}
	switch v := dest.(type) {
	case nil:
		return nil
	case *[]byte:
		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body: %w", err)
		}
		*v = b
		return nil
	default:
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return fmt.Errorf("decode json: %w", err)
		}
		return nil
	}
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return b, nil
	}
}

func retryable(err error) bool {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
