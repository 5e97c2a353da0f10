package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/sketchd/internal/controller"
	api "github.com/fyrsmithlabs/sketchd/internal/http"
	"github.com/fyrsmithlabs/sketchd/internal/store"
)

// DefaultTimeout covers a full instruction including oracle retries.
const DefaultTimeout = 3 * time.Minute

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

// Client talks to one sketchd server.
type Client struct {
	baseURL string
	client  *http.Client
}

// New creates a client for baseURL, e.g. http://127.0.0.1:8642.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{baseURL: baseURL, client: &http.Client{Timeout: timeout}}
}

// BaseURL returns the server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var out api.HealthResponse
	return &out, c.do(ctx, http.MethodGet, "/health", nil, &out)
}

// CreateSession starts a new drawing session.
func (c *Client) CreateSession(ctx context.Context) (*api.SessionResponse, error) {
	var out api.SessionResponse
	return &out, c.do(ctx, http.MethodPost, "/api/v1/sessions", nil, &out)
}

// ListSessions lists stored sessions.
func (c *Client) ListSessions(ctx context.Context) ([]store.Summary, error) {
	var out []store.Summary
	return out, c.do(ctx, http.MethodGet, "/api/v1/sessions", nil, &out)
}

// State returns a session's ledger.
func (c *Client) State(ctx context.Context, id string) (*api.StateResponse, error) {
	var out api.StateResponse
	return &out, c.do(ctx, http.MethodGet, "/api/v1/sessions/"+id, nil, &out)
}

// DeleteSession removes a session.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/sessions/"+id, nil, nil)
}

// Instruct sends one drawing instruction.
func (c *Client) Instruct(ctx context.Context, id, instruction string) (*controller.Outcome, error) {
	var out controller.Outcome
	req := api.InstructionRequest{Instruction: instruction}
	return &out, c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/instructions", req, &out)
}

// Confirm confirms and executes preview strokes.
func (c *Client) Confirm(ctx context.Context, id string) (*controller.ConfirmResult, error) {
	var out controller.ConfirmResult
	return &out, c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/confirm", nil, &out)
}

// Reject discards preview strokes.
func (c *Client) Reject(ctx context.Context, id string) (int, error) {
	var out api.RejectResponse
	err := c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/reject", nil, &out)
	return out.Rejected, err
}

// Undo removes the last n strokes.
func (c *Client) Undo(ctx context.Context, id string, n int) (*api.UndoResponse, error) {
	var out api.UndoResponse
	return &out, c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/undo", api.UndoRequest{Count: n}, &out)
}

// Stop raises the session's stop signal.
func (c *Client) Stop(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/stop", nil, nil)
}

// Resume clears the session's stop signal.
func (c *Client) Resume(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodPost, "/api/v1/sessions/"+id+"/resume", nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &APIError{Status: resp.StatusCode, Message: fmt.Sprintf("failed to read response body: %v", err)}
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return &APIError{Status: resp.StatusCode, Message: body.Error}
	}
	return &APIError{Status: resp.StatusCode, Message: string(bytes.TrimSpace(data))}
}
