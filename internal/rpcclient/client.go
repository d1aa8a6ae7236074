package rpcclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/madhatter5501/workloop/internal/apperr"
)

// Client sends JSON-RPC-style requests to the agent gateway's single /rpc
// endpoint (§6.1), wrapped in a circuit breaker so an unreachable or
// misbehaving gateway degrades the work/review phases to a skipped cycle
// rather than a pile of blocked HTTP calls (§5).
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	br         *breaker
}

// New constructs a Client against baseURL (e.g. http://host:port), sending
// token as a bearer credential on every request.
func New(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		token:      token,
		br:         newBreakerState("agent-gateway"),
	}
}

// ChatSend issues chat.send, the call that launches an agent turn (§4.2).
func (c *Client) ChatSend(ctx context.Context, p ChatSendParams) (ChatSendResult, error) {
	var out ChatSendResult
	err := c.call(ctx, "chat.send", p, &out)
	return out, err
}

// ChatAbort issues chat.abort, used by AgentManager.Kill (§4.2).
func (c *Client) ChatAbort(ctx context.Context, sessionKey string) error {
	return c.call(ctx, "chat.abort", ChatAbortParams{SessionKey: sessionKey}, nil)
}

// sessionsListResult is sessions.list's envelope shape (§6.1): the payload
// wraps the slice in a "sessions" field rather than being the slice itself.
type sessionsListResult struct {
	Sessions []SessionInfo `json:"sessions"`
}

// SessionsList issues sessions.list. Nothing in this module calls it; the
// reap sweep reads session rows from the store instead.
func (c *Client) SessionsList(ctx context.Context, limit int) ([]SessionInfo, error) {
	var out sessionsListResult
	err := c.call(ctx, "sessions.list", map[string]any{"limit": limit}, &out)
	return out.Sessions, err
}

// sessionsPreviewResult is sessions.preview's envelope shape (§6.1).
type sessionsPreviewResult struct {
	Previews []SessionPreview `json:"previews"`
}

// SessionPreview is one entry of sessions.preview's result.
type SessionPreview struct {
	Key    string              `json:"key"`
	Status string              `json:"status"` // ok|empty|missing|error
	Items  []SessionPreviewItem `json:"items"`
}

// SessionPreviewItem is one message in a previewed session transcript.
type SessionPreviewItem struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Model string `json:"model,omitempty"`
}

// SessionsPreview issues sessions.preview for a set of session keys.
func (c *Client) SessionsPreview(ctx context.Context, keys []string, limit int) ([]SessionPreview, error) {
	var out sessionsPreviewResult
	err := c.call(ctx, "sessions.preview", map[string]any{"keys": keys, "limit": limit}, &out)
	return out.Previews, err
}

// SessionsReset issues sessions.reset.
func (c *Client) SessionsReset(ctx context.Context, sessionKey string) error {
	return c.call(ctx, "sessions.reset", SessionKeyParams{SessionKey: sessionKey}, nil)
}

// SessionsCompact issues sessions.compact.
func (c *Client) SessionsCompact(ctx context.Context, sessionKey string) error {
	return c.call(ctx, "sessions.compact", SessionKeyParams{SessionKey: sessionKey}, nil)
}

// SessionsCancel issues sessions.cancel.
func (c *Client) SessionsCancel(ctx context.Context, sessionKey string) error {
	return c.call(ctx, "sessions.cancel", SessionKeyParams{SessionKey: sessionKey}, nil)
}

// ConfigGet issues config.get, exposing gateway-side settings the
// supervisor passes through without interpreting (§6.1).
func (c *Client) ConfigGet(ctx context.Context) (ConfigGetResult, error) {
	var out ConfigGetResult
	err := c.call(ctx, "config.get", nil, &out)
	return out, err
}

// CronRegister issues cron.register, used by the setup-crons CLI surface to
// register one project's scheduled work-loop job with the gateway (§6.4).
func (c *Client) CronRegister(ctx context.Context, p CronRegisterParams) error {
	return c.call(ctx, "cron.register", p, nil)
}

// call sends one envelope through the breaker and unmarshals its payload
// into out (skipped if out is nil). A semantic gateway error (ok:false)
// is returned as *apperr.GatewayError without ever counting as a breaker
// failure; only transport-level failures (network errors, non-2xx/503
// statuses, malformed bodies) count toward tripping it (§7).
func (c *Client) call(ctx context.Context, method string, params, out any) error {
	result, err := c.br.Execute(func() (any, error) {
		return c.doRequest(ctx, method, params)
	})
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}

	resp := result.(*Response)
	if !resp.OK {
		msg := "unknown gateway error"
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return &apperr.GatewayError{Method: method, Message: msg}
	}

	if out == nil || resp.Payload == nil {
		return nil
	}
	raw, err := json.Marshal(resp.Payload)
	if err != nil {
		return fmt.Errorf("rpc %s: re-marshal payload: %w", method, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("rpc %s: decode payload: %w", method, err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method string, params any) (*Response, error) {
	env := Envelope{Type: "req", ID: uuid.NewString(), Method: method, Params: params}
	body, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rpc", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if httpResp.StatusCode == http.StatusServiceUnavailable {
		c.br.ForceOpen(retryAfter(httpResp.Header.Get("Retry-After")))
		return nil, fmt.Errorf("gateway unavailable (503)")
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", httpResp.StatusCode)
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}

// retryAfter parses a Retry-After header into a forced-open window of
// now + (N+1)s (§5, §7), padding the gateway's stated delay by a second so a
// retry issued right at the boundary doesn't race it. Defaults to the first
// backoff step when the header is absent or unparseable.
func retryAfter(header string) time.Duration {
	if header == "" {
		return backoffSchedule[0]
	}
	if secs, err := strconv.Atoi(header); err == nil {
		return time.Duration(secs+1) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d + time.Second
		}
	}
	return backoffSchedule[0]
}
