// Package github wraps the gh CLI for the merged-PR sweep (§4.3.2, §4.4.3).
// No GitHub REST/GraphQL client library is pulled in: neither the teacher
// nor any repo in the retrieved corpus talks to the GitHub API directly --
// they all shell out to gh -- so this package continues that idiom through
// the shared internal/process.Runner rather than introducing an unrelated
// SDK dependency.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/madhatter5501/workloop/internal/process"
)

const ghTimeout = 10 * time.Second

// PRState is the subset of a pull request's lifecycle the cleanup/review
// phases care about.
type PRState string

const (
	PRStateOpen   PRState = "OPEN"
	PRStateMerged PRState = "MERGED"
	PRStateClosed PRState = "CLOSED"
)

// PR is the projection of `gh pr view/list --json` this module needs.
type PR struct {
	Number     int     `json:"number"`
	State      PRState `json:"state"`
	HeadRefName string `json:"headRefName"`
}

// Client queries pull request state for one repository via gh.
type Client struct {
	runner process.Interface
	cwd    string
}

// NewClient returns a Client that runs gh inside cwd (normally the project's
// local_path, so gh picks up the right repo from .git).
func NewClient(runner process.Interface, cwd string) *Client {
	return &Client{runner: runner, cwd: cwd}
}

var ghFields = []string{"--json", "number,state,headRefName"}

// ViewByNumber fetches one PR by number.
func (c *Client) ViewByNumber(ctx context.Context, number int) (*PR, error) {
	args := append([]string{"pr", "view", fmt.Sprint(number)}, ghFields...)
	out, err := c.runner.Run(ctx, c.cwd, ghTimeout, "gh", args...)
	if err != nil {
		return nil, fmt.Errorf("gh pr view %d: %w", number, err)
	}

	var pr PR
	if err := json.Unmarshal([]byte(out), &pr); err != nil {
		return nil, fmt.Errorf("gh pr view %d: parse: %w", number, err)
	}
	return &pr, nil
}

// ListOpen lists open PRs for the repository, for the review phase's
// head-branch search (§4.4 step 3).
func (c *Client) ListOpen(ctx context.Context) ([]PR, error) {
	args := append([]string{"pr", "list", "--state", "open"}, ghFields...)
	out, err := c.runner.Run(ctx, c.cwd, ghTimeout, "gh", args...)
	if err != nil {
		return nil, fmt.Errorf("gh pr list: %w", err)
	}

	var prs []PR
	if err := json.Unmarshal([]byte(out), &prs); err != nil {
		return nil, fmt.Errorf("gh pr list: parse: %w", err)
	}
	return prs, nil
}

// FindByHeadBranch searches open PRs for one whose head branch equals or
// starts with branch (§4.4 step 3).
func (c *Client) FindByHeadBranch(ctx context.Context, branch string) (*PR, error) {
	prs, err := c.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	for _, pr := range prs {
		if pr.HeadRefName == branch || hasPrefix(pr.HeadRefName, branch) {
			p := pr
			return &p, nil
		}
	}
	return nil, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// DeleteRemoteBranch removes a merged branch from origin (§4.3.4).
func (c *Client) DeleteRemoteBranch(ctx context.Context, branch string) error {
	if _, err := c.runner.Run(ctx, c.cwd, ghTimeout, "git", "push", "origin", "--delete", branch); err != nil {
		return fmt.Errorf("delete remote branch %s: %w", branch, err)
	}
	return nil
}
