package cycle

import (
	"github.com/madhatter5501/workloop/internal/config"
	"github.com/madhatter5501/workloop/internal/model"
)

// AgentCounter is the subset of internal/agent.Manager the admission
// controller needs (§4.7). A narrow interface so this package never imports
// internal/agent.
type AgentCounter interface {
	ActiveCount(projectID string, role model.Role) int
}

// DenialReason is the fixed vocabulary the spec requires every capacity
// denial to be logged with (§4.7).
type DenialReason string

const (
	DenialNone     DenialReason = ""
	DenialGlobal   DenialReason = "global_limit"
	DenialProject  DenialReason = "project_limit"
	DenialDev      DenialReason = "dev_limit"
	DenialReviewer DenialReason = "reviewer_limit"
)

// Admission is the capacity controller (§4.7): the policy gate every spawn
// attempt in the review and work phases runs through first. Grounded on
// worktree_manager.go's CanStartDevWork (an active-count-vs-limit check
// against a store-backed pool), generalized here to four independent
// dimensions (global, per-project, per-dev-role, per-reviewer-role) backed
// by the in-memory agent manager instead of a worktree pool table.
type Admission struct {
	cfg     config.Config
	counter AgentCounter
}

// NewAdmission constructs an Admission controller.
func NewAdmission(cfg config.Config, counter AgentCounter) *Admission {
	return &Admission{cfg: cfg, counter: counter}
}

// Check runs the capacity policy for a prospective spawn of role in
// projectID, returning the first limit reached (if any) in the order §4.7
// lists them: global, then per-project, then per-role.
func (a *Admission) Check(projectID string, role model.Role) DenialReason {
	if a.counter.ActiveCount("", "") >= a.cfg.MaxAgentsGlobal {
		return DenialGlobal
	}
	if a.counter.ActiveCount(projectID, "") >= a.cfg.MaxAgentsPerProject {
		return DenialProject
	}
	switch role {
	case model.RoleDev:
		if a.counter.ActiveCount("", model.RoleDev) >= a.cfg.MaxDevAgents {
			return DenialDev
		}
	case model.RoleReviewer:
		if a.counter.ActiveCount("", model.RoleReviewer) >= a.cfg.MaxReviewerAgents {
			return DenialReviewer
		}
	}
	return DenialNone
}
