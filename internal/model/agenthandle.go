package model

import "time"

// AgentHandle is the agent manager's in-memory record of a live agent run.
// It is deliberately never persisted (§3, §9 design notes): the sessions
// table is the ground truth, and losing this map on restart is intentional.
type AgentHandle struct {
	TaskID            string
	ProjectID         string
	Role              Role
	SessionKey        string
	SpawnedAt         time.Time
	LastActivityAt    time.Time
	RecentlyReapedRole Role
}

// Matches reports whether this handle satisfies the given project/role
// filters, used by agent.Manager.ActiveCount (§4.2).
func (h AgentHandle) Matches(projectID string, role Role) bool {
	if projectID != "" && h.ProjectID != projectID {
		return false
	}
	if role != "" && h.Role != role {
		return false
	}
	return true
}
