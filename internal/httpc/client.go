// Package httpc provides HTTP clients tuned for talking to the robot's
// local hardware daemons. Actuator calls sit on the motion worker's hot
// path, so every client here carries a short timeout.
package httpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// Default timeouts for daemon calls.
const (
	DefaultTimeout         = 2 * time.Second
	DefaultConnectTimeout  = 500 * time.Millisecond
	DefaultKeepAlive       = 30 * time.Second
	DefaultIdleConnTimeout = 90 * time.Second
)

// NewClient creates an HTTP client with the given overall timeout.
func NewClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   DefaultConnectTimeout,
				KeepAlive: DefaultKeepAlive,
			}).DialContext,
			MaxIdleConns:        16,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     DefaultIdleConnTimeout,
		},
	}
}

// Client is the shared client used when a caller doesn't bring its own.
var Client = NewClient(DefaultTimeout)

// StatusError is returned when a daemon answers with a non-2xx status.
type StatusError struct {
	URL    string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpc: %s returned %d: %s", e.URL, e.Status, e.Body)
}

// PostJSON marshals payload, posts it to url and drains the response.
// Non-2xx answers are reported as *StatusError.
func PostJSON(ctx context.Context, c *http.Client, url string, payload any) error {
	if c == nil {
		c = Client
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("httpc: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("httpc: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return fmt.Errorf("httpc: post %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: url, Status: resp.StatusCode, Body: string(body)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
