// Package client talks to the portfolio chat HTTP API.
package client

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

	"github.com/comigor/portfolio-chat/internal/server"
)

// Client is an API client bound to one base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client. A nil httpClient gets a 60s timeout.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// APIError is a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api: status %d", e.Status)
	}
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// Chat sends one message and returns the reply and the session it belongs to.
func (c *Client) Chat(ctx context.Context, sessionID, message string) (server.ChatResponse, error) {
	var out server.ChatResponse
	body, err := json.Marshal(server.ChatRequest{Message: message, SessionID: sessionID})
	if err != nil {
		return out, err
	}
	err = c.do(ctx, http.MethodPost, "/api/chat", bytes.NewReader(body), &out)
	return out, err
}

// History returns the stored messages of a session, oldest first.
func (c *Client) History(ctx context.Context, sessionID string, limit int) ([]server.HistoryMessage, error) {
	path := "/api/chat/history/" + url.PathEscape(sessionID)
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var out server.HistoryResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// Health checks the service liveness endpoint.
func (c *Client) Health(ctx context.Context) (server.HealthResponse, error) {
	var out server.HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode %s response: %w", path, err)
	}
	return nil
}
