// Package httpapi is a thin outbound client for the HTTP API surface the
// spec defines as consumed, not owned (§6.3): the same endpoints the web UI
// and agent plugin tools call. No other package in this module imports it;
// the cycle phases write comments and events through the Repository.
// Grounded on agents/api_spawner.go's net/http
// request-building idiom; stdlib net/http is kept rather than a client
// library because the teacher itself always talks HTTP via stdlib, never a
// generated client, for outbound calls of this shape.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the TRAP_URL HTTP API (§6.3, §6.6).
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New constructs a Client against baseURL (typically TRAP_URL).
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    baseURL,
	}
}

// CreateTaskParams is the body for POST /tasks.
type CreateTaskParams struct {
	ProjectID   string `json:"projectId"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Role        string `json:"role,omitempty"`
}

// CreateTask issues POST /tasks.
func (c *Client) CreateTask(ctx context.Context, p CreateTaskParams) error {
	return c.do(ctx, http.MethodPost, "/api/tasks", p, nil)
}

// PatchTaskParams is the partial-update body for PATCH /tasks/{id}.
type PatchTaskParams map[string]any

// PatchTask issues PATCH /tasks/{id}.
func (c *Client) PatchTask(ctx context.Context, taskID string, p PatchTaskParams) error {
	return c.do(ctx, http.MethodPatch, "/api/tasks/"+taskID, p, nil)
}

// AddCommentParams is the body for POST /tasks/{id}/comments.
type AddCommentParams struct {
	Author     string `json:"author"`
	AuthorType string `json:"authorType"`
	Content    string `json:"content"`
	Type       string `json:"type,omitempty"`
}

// AddComment issues POST /tasks/{id}/comments.
func (c *Client) AddComment(ctx context.Context, taskID string, p AddCommentParams) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/comments", p, nil)
}

// SignalParams is the body for POST /signal.
type SignalParams struct {
	TaskID     string `json:"taskId"`
	SessionKey string `json:"sessionKey"`
	AgentID    string `json:"agentId"`
	Kind       string `json:"kind"`
	Severity   string `json:"severity"`
	Message    string `json:"message"`
}

// Signal issues POST /signal.
func (c *Client) Signal(ctx context.Context, p SignalParams) error {
	return c.do(ctx, http.MethodPost, "/api/signal", p, nil)
}

// CompleteTask issues POST /tasks/{id}/complete.
func (c *Client) CompleteTask(ctx context.Context, taskID string) error {
	return c.do(ctx, http.MethodPost, "/api/tasks/"+taskID+"/complete", nil, nil)
}

// PostChatMessageParams is the body for POST /api/chats/{chatId}/messages.
type PostChatMessageParams struct {
	Author  string `json:"author"`
	Content string `json:"content"`
}

// PostChatMessage issues POST /api/chats/{chatId}/messages.
func (c *Client) PostChatMessage(ctx context.Context, chatID string, p PostChatMessageParams) error {
	return c.do(ctx, http.MethodPost, "/api/chats/"+chatID+"/messages", p, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpapi %s %s: marshal body: %w", method, path, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("httpapi %s %s: build request: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpapi %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpapi %s %s: read response: %w", method, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("httpapi %s %s: status %d: %s", method, path, resp.StatusCode, respBody)
	}
	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("httpapi %s %s: decode response: %w", method, path, err)
		}
	}
	return nil
}
