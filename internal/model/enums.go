// Package model defines the typed entities the work-loop supervisor persists
// and passes between components. Every entity here has a direct table (or
// index) in internal/store; nothing here is a bare map[string]any.
package model

// TaskStatus is the kanban state of a Task.
type TaskStatus string

const (
	StatusBacklog    TaskStatus = "backlog"
	StatusReady      TaskStatus = "ready"
	StatusInProgress TaskStatus = "in_progress"
	StatusInReview   TaskStatus = "in_review"
	StatusBlocked    TaskStatus = "blocked"
	StatusDone       TaskStatus = "done"
)

// Priority orders the work queue; lower ordinal claims first.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// priorityRank gives the sort ordinal used by the work phase (§4.5 step 3).
var priorityRank = map[Priority]int{
	PriorityUrgent: 0,
	PriorityHigh:   1,
	PriorityMedium: 2,
	PriorityLow:    3,
}

// Rank returns the sort ordinal for this priority, unknown values sort last.
func (p Priority) Rank() int {
	if r, ok := priorityRank[p]; ok {
		return r
	}
	return len(priorityRank)
}

// Role is the kind of agent a task expects.
type Role string

const (
	RolePM               Role = "pm"
	RoleDev              Role = "dev"
	RoleResearch         Role = "research"
	RoleReviewer         Role = "reviewer"
	RoleConflictResolver Role = "conflict_resolver"
)

// Resolution records how a done/backlog task was closed out.
type Resolution string

const (
	ResolutionCompleted Resolution = "completed"
	ResolutionDiscarded Resolution = "discarded"
	ResolutionMerged    Resolution = "merged"
)

// ChatLayout selects which chat channel plugin a project's notifications use.
type ChatLayout string

const (
	ChatLayoutSlack    ChatLayout = "slack"
	ChatLayoutIMessage ChatLayout = "imessage"
)

// CommentAuthorType identifies who wrote a Comment.
type CommentAuthorType string

const (
	AuthorCoordinator CommentAuthorType = "coordinator"
	AuthorAgent       CommentAuthorType = "agent"
	AuthorHuman       CommentAuthorType = "human"
)

// CommentType distinguishes plain chatter from structural comments.
type CommentType string

const (
	CommentMessage      CommentType = "message"
	CommentStatusChange CommentType = "status_change"
	CommentRequestInput CommentType = "request_input"
	CommentCompletion   CommentType = "completion"
)

// SignalKind is the reason an agent paused to talk to the coordinator.
type SignalKind string

const (
	SignalQuestion SignalKind = "question"
	SignalBlocker  SignalKind = "blocker"
	SignalAlert    SignalKind = "alert"
	SignalFYI      SignalKind = "fyi"
)

// Blocking reports whether this kind of signal halts the task (all but fyi).
func (k SignalKind) Blocking() bool {
	return k != SignalFYI
}

// SignalSeverity ranks a Signal for the gate aggregator's sort order.
type SignalSeverity string

const (
	SeverityNormal   SignalSeverity = "normal"
	SeverityHigh     SignalSeverity = "high"
	SeverityCritical SignalSeverity = "critical"
)

// severityRank orders critical first, matching §4.9's pendingSignals sort.
var severityRank = map[SignalSeverity]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityNormal:   2,
}

// Rank returns the sort ordinal for this severity, unknown values sort last.
func (s SignalSeverity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return len(severityRank)
}

// SessionStatus is the agent gateway's view of a conversation's liveness.
type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionIdle      SessionStatus = "idle"
	SessionCompleted SessionStatus = "completed"
	SessionStale     SessionStatus = "stale"
)

// NotificationType categorizes a Notification for the coordinator-facing UI.
type NotificationType string

const (
	NotificationEscalation   NotificationType = "escalation"
	NotificationRequestInput NotificationType = "request_input"
	NotificationCompletion   NotificationType = "completion"
	NotificationSystem       NotificationType = "system"
)

// NotificationSeverity mirrors the user-visible surface described in §7.
type NotificationSeverity string

const (
	NotifyInfo     NotificationSeverity = "info"
	NotifyWarning  NotificationSeverity = "warning"
	NotifyCritical NotificationSeverity = "critical"
)

// TaskEventType enumerates the append-only audit events a cycle may record.
type TaskEventType string

const (
	EventStatusChanged    TaskEventType = "status_changed"
	EventAgentAssigned    TaskEventType = "agent_assigned"
	EventAgentCompleted   TaskEventType = "agent_completed"
	EventAgentReaped      TaskEventType = "agent_reaped"
	EventPRMerged         TaskEventType = "pr_merged"
	EventCommentAdded     TaskEventType = "comment_added"
	EventTriageSent       TaskEventType = "triage_sent"
	EventTriageEscalated  TaskEventType = "triage_escalated"
	EventGhostTaskBlocked TaskEventType = "ghost_task_blocked"
	EventAutoCompleted    TaskEventType = "task_auto_completed_merged_pr"
)

// RoleModel is the fixed role→model map required by §4.5 step 4. Every role
// must appear explicitly; ModelForRole falls back to the dev mapping
// only when a role genuinely has no entry (which should never happen given
// the map below is exhaustive over Role).
var RoleModel = map[Role]string{
	RolePM:               "gpt",
	RoleResearch:         "gpt",
	RoleReviewer:         "moonshot/kimi-for-coding",
	RoleDev:              "moonshot/kimi-for-coding",
	RoleConflictResolver: "moonshot/kimi-for-coding",
}

// ModelForRole returns the fixed model for a role, defaulting to the dev
// model mapping per §4.5 ("the default is the dev mapping").
func ModelForRole(r Role) string {
	if m, ok := RoleModel[r]; ok {
		return m
	}
	return RoleModel[RoleDev]
}
