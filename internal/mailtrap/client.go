// Package mailtrap talks to the Mailtrap address validation API.
package mailtrap

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/ignite/mailguard/internal/config"
	"github.com/ignite/mailguard/internal/pkg/httpretry"
	"github.com/ignite/mailguard/internal/pkg/ratelimit"
)

var (
	// ErrRejected marks a definite "no" from the API: a 4xx status or a
	// 2xx body with success=false.
	ErrRejected = errors.New("mailtrap: address rejected")
	// ErrUpstream marks a 5xx status. The address may be fine.
	ErrUpstream = errors.New("mailtrap: upstream failure")
)

// APIError carries the HTTP status and message of a non-accepting answer.
// It unwraps to ErrRejected or ErrUpstream.
type APIError struct {
	StatusCode int
	Message    string
	kind       error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mailtrap API error (status %d): %s", e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

// ValidateResponse is the JSON body of /accounts/validate.
type ValidateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Client is a Mailtrap API client
type Client struct {
	baseURL    string
	apiToken   string
	httpClient httpretry.HTTPDoer
	limiter    ratelimit.Limiter
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the retrying HTTP client.
func WithHTTPClient(d httpretry.HTTPDoer) Option {
	return func(c *Client) { c.httpClient = d }
}

// WithLimiter caps outgoing calls.
func WithLimiter(l ratelimit.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient creates a new Mailtrap API client. retries is passed to the
// retrying transport.
func NewClient(cfg config.MailtrapConfig, retries int, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiToken: cfg.APIToken,
		httpClient: httpretry.NewRetryClient(&http.Client{
			Timeout: cfg.Timeout(),
		}, retries),
		limiter: ratelimit.Unlimited{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API token is set.
func (c *Client) Configured() bool {
	return c.apiToken != ""
}

// Validate asks the API whether email can receive mail. A nil error means
// accepted. An *APIError means the API answered with a verdict other than
// accepted. Any other error is transport failure.
func (c *Client) Validate(ctx context.Context, email string) (*ValidateResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	params := url.Values{}
	params.Set("email", email)

	status, body, err := c.doRequest(ctx, http.MethodGet, "/accounts/validate", params)
	if err != nil {
		return nil, err
	}

	if status >= 500 {
		return nil, &APIError{StatusCode: status, Message: string(body), kind: ErrUpstream}
	}
	if status < 200 || status >= 300 {
		return nil, &APIError{StatusCode: status, Message: string(body), kind: ErrRejected}
	}

	var resp ValidateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing validate response: %w", err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "Invalid email"
		}
		return &resp, &APIError{StatusCode: status, Message: msg, kind: ErrRejected}
	}
	return &resp, nil
}

// doRequest makes an authenticated request and returns the status and body
// regardless of the status code.
func (c *Client) doRequest(ctx context.Context, method, path string, params url.Values) (int, []byte, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("reading response: %w", err)
	}
	return resp.StatusCode, body, nil
}
