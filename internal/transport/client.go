// Package transport provides the shared HTTP client used by the upstream
// source adapters, with bounded timeouts and JSON decoding.
package transport

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/genomicsops/panelmap/pkg/errors"
)

// DefaultHTTPTimeout is the default timeout for HTTP requests.
var DefaultHTTPTimeout = 30 * time.Second

// Client provides HTTP client functionality for upstream JSON APIs.
type Client struct {
	http      *http.Client
	userAgent string
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithUserAgent sets the User-Agent header sent on every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New creates a new transport client.
func New(opts ...Option) *Client {
	c := &Client{
		http:      &http.Client{Timeout: DefaultHTTPTimeout},
		userAgent: "panelmap",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get performs a GET request and returns the response. The caller owns
// the response body.
func (c *Client) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.WrapIO("create", "GET "+url, err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	return c.http.Do(req)
}

// GetJSON performs a GET request for the named service and decodes the
// JSON response body into out. Transport failures and 5xx responses
// surface as upstream-unreachable errors, 4xx as plain API errors.
func (c *Client) GetJSON(ctx context.Context, service, url string, out any) error {
	resp, err := c.Get(ctx, url)
	if err != nil {
		return &errors.APIError{
			Service:  service,
			Message:  "request failed",
			Endpoint: url,
			Err:      err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return &errors.APIError{
			Service:    service,
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Endpoint:   url,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &errors.APIError{
			Service:  service,
			Message:  "decoding response body",
			Endpoint: url,
			Err:      err,
		}
	}
	return nil
}
