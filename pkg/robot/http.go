package robot

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/teslashibe/go-rave/internal/httpc"
)

// HTTPMotorDriver drives the wheels through the motor daemon's HTTP API.
type HTTPMotorDriver struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPMotorDriver creates a motor driver for the daemon at baseURL
// (e.g. "http://127.0.0.1:8010"). A nil client uses httpc.Client.
func NewHTTPMotorDriver(baseURL string, client *http.Client) *HTTPMotorDriver {
	if client == nil {
		client = httpc.Client
	}
	return &HTTPMotorDriver{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

type driveRequest struct {
	Left       WheelAction `json:"left"`
	Right      WheelAction `json:"right"`
	DurationMS int64       `json:"duration_ms"`
}

// Drive posts to /api/motors/drive.
func (d *HTTPMotorDriver) Drive(ctx context.Context, left, right WheelAction, duration time.Duration) error {
	return httpc.PostJSON(ctx, d.client, d.BaseURL+"/api/motors/drive", driveRequest{
		Left:       left.Clamp(),
		Right:      right.Clamp(),
		DurationMS: duration.Milliseconds(),
	})
}

// Stop posts to /api/motors/stop.
func (d *HTTPMotorDriver) Stop(ctx context.Context) error {
	return httpc.PostJSON(ctx, d.client, d.BaseURL+"/api/motors/stop", struct{}{})
}

// HTTPEyeDisplay renders expressions through the LED daemon's HTTP API.
type HTTPEyeDisplay struct {
	BaseURL string
	client  *http.Client
}

// NewHTTPEyeDisplay creates an eye display for the daemon at baseURL.
func NewHTTPEyeDisplay(baseURL string, client *http.Client) *HTTPEyeDisplay {
	if client == nil {
		client = httpc.Client
	}
	return &HTTPEyeDisplay{
		BaseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// SetExpression posts to /api/eyes/expression.
func (e *HTTPEyeDisplay) SetExpression(ctx context.Context, name string) error {
	return httpc.PostJSON(ctx, e.client, e.BaseURL+"/api/eyes/expression", map[string]string{
		"expression": name,
	})
}

// PlaySpecial posts to /api/eyes/special.
func (e *HTTPEyeDisplay) PlaySpecial(ctx context.Context, name string) error {
	return httpc.PostJSON(ctx, e.client, e.BaseURL+"/api/eyes/special", map[string]string{
		"special": name,
	})
}

var (
	_ MotorDriver = (*HTTPMotorDriver)(nil)
	_ EyeDisplay  = (*HTTPEyeDisplay)(nil)
)
