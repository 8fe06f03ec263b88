// Package backend is a client for the game backend that records finished
// runs, lists shop purchases and serves the token configuration.
//
// Every request carries the ngrok-skip-browser-warning header so the
// development tunnel serves JSON instead of its interstitial page.
//
// # Usage
//
//	client := backend.NewClient(backend.Config{
//	    Endpoint: "https://flappy.krigga.dev",
//	})
//
//	res, err := client.SubmitPlayed(ctx, backend.PlayedRequest{TgData: initData, Wallet: addr, Score: 12})
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

// Known deployments.
const (
	DevEndpoint  = "https://crucial-enabling-fox.ngrok-free.app"
	ProdEndpoint = "https://flappy.krigga.dev"
)

// Config holds configuration for the backend client.
type Config struct {
	// Endpoint is the base URL of the backend. Defaults to ProdEndpoint.
	Endpoint string

	// MaxRetries is the maximum number of retry attempts for retryable errors.
	// Defaults to 3 if zero.
	MaxRetries uint64

	// BaseRetryDelay is the initial backoff delay. Defaults to 500ms if zero.
	BaseRetryDelay time.Duration

	// MaxRetryDelay caps the exponential backoff delay.
	// Defaults to 5 seconds if zero.
	MaxRetryDelay time.Duration

	// HTTPClient allows injecting a custom HTTP client (useful for testing).
	// Defaults to a client with 15s timeout.
	HTTPClient *http.Client
}

// Client talks to the backend. It is safe for concurrent use.
type Client struct {
	config Config
	http   *http.Client

	mu     sync.RWMutex
	remote *RemoteConfig
}

// NewClient creates a backend client with defaults applied.
func NewClient(cfg Config) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = ProdEndpoint
	}
	cfg.Endpoint = strings.TrimRight(cfg.Endpoint, "/")
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseRetryDelay == 0 {
		cfg.BaseRetryDelay = 500 * time.Millisecond
	}
	if cfg.MaxRetryDelay == 0 {
		cfg.MaxRetryDelay = 5 * time.Second
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}

	return &Client{config: cfg, http: httpClient}
}

// Endpoint returns the configured base URL.
func (c *Client) Endpoint() string {
	return c.config.Endpoint
}

// SubmitPlayed reports a finished run and returns the reward it earned.
// Every accepted call counts as a play, so only rate-limited attempts are
// repeated. A failure after the request was sent is returned as is.
func (c *Client) SubmitPlayed(ctx context.Context, req PlayedRequest) (*PlayedResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("backend: marshal played: %w", err)
	}

	var resp playedResponse
	if err := c.doWithRetry(ctx, http.MethodPost, "/played", body, &resp, rateLimited); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &APIError{Endpoint: "played", Message: resp.Error}
	}
	if resp.Achievements == nil {
		resp.Achievements = []string{}
	}
	return &resp.PlayedResult, nil
}

// Purchases lists the items owned by the player identified by auth (the
// Telegram init data).
func (c *Client) Purchases(ctx context.Context, auth string) ([]Purchase, error) {
	var resp purchasesResponse
	path := "/purchases?auth=" + url.QueryEscape(auth)
	if err := c.doWithRetry(ctx, http.MethodGet, path, nil, &resp, transient); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &APIError{Endpoint: "purchases", Message: resp.Error}
	}
	return resp.Purchases, nil
}

// Config returns the remote configuration. The first successful response is
// cached for the lifetime of the client.
func (c *Client) Config(ctx context.Context) (*RemoteConfig, error) {
	c.mu.RLock()
	cached := c.remote
	c.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	var resp configResponse
	if err := c.doWithRetry(ctx, http.MethodGet, "/config", nil, &resp, transient); err != nil {
		return nil, err
	}
	if !resp.OK {
		return nil, &APIError{Endpoint: "config", Message: resp.Error}
	}

	c.mu.Lock()
	c.remote = &resp.Config
	c.mu.Unlock()
	return &resp.Config, nil
}

// doRequest sends one request and decodes a 200 response into out.
func (c *Client) doRequest(ctx context.Context, method, path string, body []byte, out any) error {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.Endpoint+path, rd)
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("ngrok-skip-browser-warning", "true")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("backend: read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	case resp.StatusCode != http.StatusOK:
		return &HTTPError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("backend: invalid response JSON: %w", err)
	}
	return nil
}

// doWithRetry retries errors accepted by retryable with capped exponential
// backoff.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte, out any, retryable func(ctx context.Context, err error) bool) error {
	b := retry.NewExponential(c.config.BaseRetryDelay)
	b = retry.WithCappedDuration(c.config.MaxRetryDelay, b)
	b = retry.WithMaxRetries(c.config.MaxRetries, b)

	attempts := 0
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		attempts++
		err := c.doRequest(ctx, method, path, body, out)
		if err != nil && retryable(ctx, err) {
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil && attempts > 1 {
		return fmt.Errorf("backend: %s %s failed after %d attempts: %w", method, strings.SplitN(path, "?", 2)[0], attempts, err)
	}
	return err
}

// transient accepts transport failures, 429 and 5xx. Only safe for reads.
func transient(ctx context.Context, err error) bool {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.IsRetryable()
	}
	return isTransport(err) && ctx.Err() == nil
}

// rateLimited accepts only 429, which the backend answers before doing any
// work.
func rateLimited(_ context.Context, err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests
}

func isTransport(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue)
}
