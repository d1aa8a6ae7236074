package model

import (
	"strings"
	"time"
)

// Session is the agent gateway's authoritative liveness record for a
// conversation, mirrored into the store. The agent manager's in-memory
// handle map is never trusted for "is this still running" — this row is
// (§4.2 ghost detection, §9 design notes).
type Session struct {
	Key            string
	Status         SessionStatus
	Model          string
	InputTokens    int
	OutputTokens   int
	TotalTokens    int
	LastActiveAt   time.Time
}

// WorkLoopSessionKey formats the work-loop session key (§6.5):
// "workloop:<role>:<task_id>".
func WorkLoopSessionKey(role Role, taskID string) string {
	return "workloop:" + string(role) + ":" + taskID
}

// ChatSessionKey formats the out-of-core chat-channel session key (§6.5):
// "clutch:<project_slug>:<chat_id>".
func ChatSessionKey(projectSlug, chatID string) string {
	return "clutch:" + projectSlug + ":" + chatID
}

// ParseWorkLoopSessionKey extracts role and task id from a work-loop session
// key, reporting ok=false if the key isn't in that format.
func ParseWorkLoopSessionKey(key string) (role Role, taskID string, ok bool) {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) != 3 || parts[0] != "workloop" {
		return "", "", false
	}
	return Role(parts[1]), parts[2], true
}

// Reaped reports whether a session's status means its agent handle should be
// removed from the in-memory map (§4.2 reap()).
func (s Session) Reaped() bool {
	return s.Status == SessionCompleted || s.Status == SessionStale
}
