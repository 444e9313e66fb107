// Package api is the typed client for the backend's HTTP surface.
//
// Every call applies a per-attempt timeout and retries sequentially with a
// linearly growing delay (RetryDelay * attempt). Any non-2xx response counts
// as a failure. After the last attempt the caller receives an *Error carrying
// the last HTTP status observed.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bkonkle/cowork/internal/logging"
	"github.com/bkonkle/cowork/internal/metrics"
)

const (
	// DefaultTimeout bounds each attempt.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxAttempts is the number of attempts per call.
	DefaultMaxAttempts = 3
	// DefaultRetryDelay is multiplied by the attempt number between attempts.
	DefaultRetryDelay = time.Second

	maxBodyBytes = 8 << 20
)

// Client calls the backend REST API.
type Client struct {
	BaseURL     string
	Token       string
	Timeout     time.Duration
	MaxAttempts int
	RetryDelay  time.Duration

	HTTPClient *http.Client
	Logger     logging.Logger
	Metrics    *metrics.Metrics
}

// NewClient returns a client with default timeout and retry settings.
func NewClient(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		Token:       token,
		Timeout:     DefaultTimeout,
		MaxAttempts: DefaultMaxAttempts,
		RetryDelay:  DefaultRetryDelay,
	}
}

func (c *Client) timeout() time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

func (c *Client) maxAttempts() int {
	if c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return DefaultMaxAttempts
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) logger() logging.Logger {
	return logging.OrNop(c.Logger)
}

// request describes one logical call.
type request struct {
	name   string
	method string
	path   string
	query  url.Values
	body   any
}

// do runs req with retries and decodes a successful body into out.
func (c *Client) do(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", req.name, err)
		}
		payload = data
	}

	target := strings.TrimRight(c.BaseURL, "/") + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	log := c.logger()
	attempts := c.maxAttempts()
	var (
		lastStatus int
		lastMsg    string
		made       int
	)

	operation := func() error {
		made++
		start := time.Now()
		err := c.attempt(ctx, req.method, target, payload, out)
		c.Metrics.RequestAttempt(req.name, err == nil, time.Since(start))
		if err == nil {
			if made > 1 {
				log.Info("%s succeeded on attempt %d", req.name, made)
			}
			return nil
		}
		if se, ok := err.(*statusError); ok {
			lastStatus = se.code
			lastMsg = se.message
		}
		log.Debug("%s attempt %d/%d failed: %v", req.name, made, attempts, err)
		return err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&linearBackOff{step: c.RetryDelay}, uint64(attempts-1)),
		ctx,
	)
	err := backoff.Retry(operation, policy)
	if err == nil {
		return nil
	}

	c.Metrics.RequestFailed(req.name)
	return &Error{
		Method:     req.method,
		Path:       req.path,
		StatusCode: lastStatus,
		Message:    lastMsg,
		Attempts:   made,
		Err:        err,
	}
}

// attempt performs a single HTTP exchange under its own timeout.
func (c *Client) attempt(ctx context.Context, method, target string, payload []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.httpClient().Do(httpReq)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &statusError{code: resp.StatusCode, message: errorMessage(data)}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage pulls a human readable message out of an error body.
func errorMessage(data []byte) string {
	var body ErrorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	switch {
	case body.Detail != "":
		return body.Detail
	default:
		return body.Error
	}
}

// linearBackOff waits step*n before the nth retry.
type linearBackOff struct {
	step time.Duration
	n    int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.n++
	return b.step * time.Duration(b.n)
}

func (b *linearBackOff) Reset() {
	b.n = 0
}
