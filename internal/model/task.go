package model

import (
	"sort"
	"time"
)

// Task is one unit of work moving through the kanban pipeline.
type Task struct {
	ID                 string
	ProjectID          string
	Title              string
	Description        string
	Status             TaskStatus
	Priority           Priority
	Role               Role
	Assignee           string
	RequiresHumanReview bool
	Tags               []string
	Position            int
	SessionID           string
	AgentSessionKey     string
	AgentModel          string
	AgentStartedAt      *time.Time
	AgentLastActiveAt   *time.Time
	AgentRetryCount     int
	Branch              string
	PRNumber            *int
	Escalated           bool
	EscalatedAt         *time.Time
	TriageSentAt        *time.Time
	TriageAckedAt       *time.Time
	Resolution          Resolution
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CompletedAt         *time.Time
}

// HasLiveAgent reports whether the task currently holds an agent session key,
// which per the data-model invariant is only legal while in_progress/in_review.
func (t Task) HasLiveAgent() bool {
	return t.AgentSessionKey != ""
}

// IsGhostEligible reports whether this status is one the ghost-detection
// sweep (§4.2) inspects at all.
func (t Task) IsGhostEligible() bool {
	return t.Status == StatusInProgress || t.Status == StatusInReview
}

// WorktreePrefix is the first 8 hex characters of the task id, used to name
// and locate the task's worktree directory (§4.3.3, §4.4.2).
func (t Task) WorktreePrefix() string {
	return firstN(t.ID, 8)
}

// DerivedBranch is the fallback branch name when the task has none set yet
// (§4.4 step 2): "fix/<first8(task_id)>".
func (t Task) DerivedBranch() string {
	if t.Branch != "" {
		return t.Branch
	}
	return "fix/" + t.WorktreePrefix()
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ClaimSort orders ready tasks for the work phase (§4.5 step 3): priority
// ascending (urgent, high, medium, low), then position ascending.
func ClaimSort(tasks []Task) {
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].Priority.Rank() != tasks[j].Priority.Rank() {
			return tasks[i].Priority.Rank() < tasks[j].Priority.Rank()
		}
		return tasks[i].Position < tasks[j].Position
	})
}
