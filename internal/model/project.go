package model

import "time"

// Project is a repository the supervisor drives a work loop over.
type Project struct {
	ID                string
	Slug              string
	Name              string
	Color             string
	RepoURL           string
	LocalPath         string
	GithubRepo        string
	ChatLayout        ChatLayout
	WorkLoopEnabled   bool
	WorkLoopMaxAgents *int
	WorkLoopSchedule  string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// WorktreesRoot returns the directory the cleanup phase scans for orphaned
// agent worktrees (§4.3.3): "<local_path>-worktrees".
func (p Project) WorktreesRoot() string {
	if p.LocalPath == "" {
		return ""
	}
	return p.LocalPath + "-worktrees"
}
