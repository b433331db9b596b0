package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Backend is the robot-control service the panel talks to
type Backend interface {
	Connect(ctx context.Context, req ConnectRequest) (string, error)
	SendCommand(ctx context.Context, cmd Telecommand) (string, error)
	RequestTelemetry(ctx context.Context) (string, error)
}

// Endpoint paths served by the gateway
const (
	ConnectPath     = "/connect"
	TelecommandPath = "/telecommand/"
	TelemetryPath   = "/telementry_request/"
)

// StatusError is returned when the backend answers with a non-2xx status
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backend returned %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("backend returned %d: %s", e.Code, e.Body)
}

// Client is the HTTP implementation of Backend
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a client for the gateway at baseURL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Connect issues POST /connect
func (c *Client) Connect(ctx context.Context, req ConnectRequest) (string, error) {
	return c.do(ctx, http.MethodPost, ConnectPath, req)
}

// SendCommand issues PUT /telecommand/
func (c *Client) SendCommand(ctx context.Context, cmd Telecommand) (string, error) {
	return c.do(ctx, http.MethodPut, TelecommandPath, cmd)
}

// RequestTelemetry issues GET /telementry_request/ with no body
func (c *Client) RequestTelemetry(ctx context.Context) (string, error) {
	return c.do(ctx, http.MethodGet, TelemetryPath, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body interface{}) (string, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return "", fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
	return string(text), nil
}
