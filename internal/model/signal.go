package model

import "time"

// Signal is a message an agent sends to the coordinator mid-task, optionally
// blocking further progress until it is answered (§3, §8 property 5).
type Signal struct {
	ID          string
	TaskID      string
	SessionKey  string
	AgentID     string
	Kind        SignalKind
	Severity    SignalSeverity
	Message     string
	Blocking    bool
	RespondedAt *time.Time
	Response    string
	DeliveredAt *time.Time
	CreatedAt   time.Time
}

// NewSignal constructs a Signal with Blocking derived from Kind, enforcing
// the invariant that only fyi signals are non-blocking.
func NewSignal(id, taskID, sessionKey, agentID string, kind SignalKind, severity SignalSeverity, message string, now time.Time) Signal {
	return Signal{
		ID:         id,
		TaskID:     taskID,
		SessionKey: sessionKey,
		AgentID:    agentID,
		Kind:       kind,
		Severity:   severity,
		Message:    message,
		Blocking:   kind.Blocking(),
		CreatedAt:  now,
	}
}

// Pending reports whether this signal is blocking and unanswered.
func (s Signal) Pending() bool {
	return s.Blocking && s.RespondedAt == nil
}
