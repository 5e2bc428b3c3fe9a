package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// APIError is a non-2xx response from the call-record API. Status carries
// the HTTP status code so callers can classify late or duplicate call
// decisions without string matching.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error (status %d): %s", e.Status, e.Message)
}

// Client provides REST API access to the PeacePad server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a new REST API client.
// baseURL should be the base URL of the API, e.g. "https://peacepad.app/api".
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// SetHTTPClient allows setting a custom HTTP client.
func (c *Client) SetHTTPClient(client *http.Client) {
	if client != nil {
		c.httpClient = client
	}
}

// SetToken sets the bearer token for authenticated requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// Call decision endpoints

// AcceptCall confirms an incoming call. 2xx means the accept is recorded
// server-side and the caller's session has been notified.
func (c *Client) AcceptCall(ctx context.Context, callID string, req AcceptCallRequest) error {
	path := "/calls/" + url.PathEscape(callID) + "/accept"
	return c.post(ctx, path, nil, nil, req.IdempotencyKey)
}

// DeclineCall rejects an incoming call with an optional canned reason.
func (c *Client) DeclineCall(ctx context.Context, callID string, req DeclineCallRequest) error {
	path := "/calls/" + url.PathEscape(callID) + "/decline"
	return c.post(ctx, path, req, nil, req.IdempotencyKey)
}

// Call history endpoints

// ListCalls retrieves call history with cursor-based pagination.
// limit: maximum number of records to return.
// before: if non-empty, returns records before this call id.
func (c *Client) ListCalls(ctx context.Context, limit int, before string) (*CallsResponse, error) {
	path := fmt.Sprintf("/calls?limit=%d", limit)
	if before != "" {
		path += "&before=" + url.QueryEscape(before)
	}

	var resp CallsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Helper methods

func (c *Client) post(ctx context.Context, path string, body, dest any, idempotencyKey string) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.do(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, "GET", c.baseURL+path, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	return c.do(req, dest)
}

func (c *Client) do(req *http.Request, dest any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	// Handle error responses
	if resp.StatusCode >= 400 {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error != "" {
			return &APIError{Status: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{Status: resp.StatusCode, Message: string(body)}
	}

	// Unmarshal success response
	if dest != nil {
		if err := json.Unmarshal(body, dest); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}
