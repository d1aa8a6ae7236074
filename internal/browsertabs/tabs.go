// Package browsertabs closes stale browser tabs an agent left open, the
// cleanup phase's best-effort fifth step (§4.3.5). Any error here is
// swallowed by the caller; this package only reports what it could
// determine. New, small, stdlib net/http -- justified the same way as
// internal/httpapi: this is an outbound client to a local out-of-core
// browser-control endpoint, and the teacher itself always talks HTTP via
// stdlib net/http rather than a client library.
package browsertabs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"
)

// Tab is one entry returned by the browser-control endpoint's tab list.
type Tab struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Client talks to a local browser-control HTTP endpoint.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New constructs a Client against baseURL (e.g. http://localhost:9222).
func New(baseURL string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
	}
}

// agentOpenedURLPatterns recognizes URLs an agent plausibly opened while
// working a task: PR pages, CI run pages, and task deep links. Any other
// URL is left alone.
var agentOpenedURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/pull/\d+`),
	regexp.MustCompile(`/actions/runs/\d+`),
	regexp.MustCompile(`/tasks/[0-9a-fA-F-]{36}`),
}

// ListTabs fetches the current open tabs.
func (c *Client) ListTabs(ctx context.Context) ([]Tab, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tabs", nil)
	if err != nil {
		return nil, fmt.Errorf("browsertabs: build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("browsertabs: list tabs: %w", err)
	}
	defer resp.Body.Close()

	var tabs []Tab
	if err := json.NewDecoder(resp.Body).Decode(&tabs); err != nil {
		return nil, fmt.Errorf("browsertabs: decode tabs: %w", err)
	}
	return tabs, nil
}

// CloseTab closes one tab by id.
func (c *Client) CloseTab(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/tabs/"+id, nil)
	if err != nil {
		return fmt.Errorf("browsertabs: build close request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("browsertabs: close tab %s: %w", id, err)
	}
	defer resp.Body.Close()
	return nil
}

// IsAgentOpened reports whether a tab's URL matches a known agent-opened
// pattern (§4.3.5).
func IsAgentOpened(url string) bool {
	for _, p := range agentOpenedURLPatterns {
		if p.MatchString(url) {
			return true
		}
	}
	return false
}

// CloseStale closes every currently open tab matching a known agent-opened
// pattern, best effort: an error from any single call is swallowed and the
// sweep continues (§4.3.5, §7 "subprocess/fetch failure ... swallowed for
// optional operations").
func (c *Client) CloseStale(ctx context.Context) (closed int) {
	tabs, err := c.ListTabs(ctx)
	if err != nil {
		return 0
	}
	for _, t := range tabs {
		if !IsAgentOpened(t.URL) {
			continue
		}
		if err := c.CloseTab(ctx, t.ID); err == nil {
			closed++
		}
	}
	return closed
}
