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

	"Leviosa/backend/go/internal/config"
	"Leviosa/backend/go/pkg/circuitbreaker"
	"Leviosa/backend/go/pkg/logger"
)

// Client wraps http.Client and protects downstream calls with a circuit breaker.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// errServerStatus marks a 5xx response as a breaker failure without discarding the response.
var errServerStatus = errors.New("server error status")

// NewClient creates a Client. A disabled breaker config yields a plain client.
func NewClient(cfg config.CircuitBreakerConfig, timeout time.Duration, log *logger.Logger) (*Client, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{httpClient: &http.Client{Timeout: timeout}}
	if !cfg.Enabled {
		return c, nil
	}
	breaker, err := NewCircuitBreaker(cfg, log)
	if err != nil {
		return nil, err
	}
	c.breaker = breaker
	return c, nil
}

// NewClientWith wraps an existing http.Client, mainly for tests against httptest servers.
func NewClientWith(hc *http.Client, breaker circuitbreaker.CircuitBreaker) *Client {
	return &Client{httpClient: hc, breaker: breaker}
}

// Do executes an HTTP request with circuit breaker protection.
// Status codes >= 500 count as breaker failures but the response is still returned to the caller.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	err := c.breaker.Execute(func() error {
		var doErr error
		resp, doErr = c.httpClient.Do(req)
		if doErr != nil {
			return doErr
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: %d", errServerStatus, resp.StatusCode)
		}
		return nil
	})
	if errors.Is(err, errServerStatus) {
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PostJSON marshals body, posts it to url and returns the status code and the raw response body.
func (c *Client) PostJSON(ctx context.Context, url string, headers map[string]string, body any) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, data, nil
}
