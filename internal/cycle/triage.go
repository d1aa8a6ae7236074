package cycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/madhatter5501/workloop/internal/model"
)

// ErrNotBlocked is returned by every triage operation when the target task
// is not currently blocked (§4.6 applies to blocked tasks only).
var ErrNotBlocked = fmt.Errorf("triage: task is not blocked")

// SubtaskSpec describes one subtask the split operation creates (§4.6).
type SubtaskSpec struct {
	Title       string
	Description string
	Priority    model.Priority
	Role        model.Role
}

// Triage implements the five blocked-task resolution operations (§4.6,
// glossary "Triage"). Each operation is idempotent-by-actor and records an
// immutable task_events row plus an explanatory comment, grounded on
// orchestrator.go's UpdateTicketStatus(id, status, actor, note) calls
// generalized from the teacher's fixed linear pipeline to the spec's five
// named resolution actions.
type Triage struct {
	repo Repository
}

// NewTriage constructs a Triage machine.
func NewTriage(repo Repository) *Triage {
	return &Triage{repo: repo}
}

// loadBlocked fetches taskID and confirms it is blocked. A missing task
// surfaces apperr.ErrNotFound unchanged, via GetTask's %w wrapping, so
// callers can still errors.Is against it without this package importing
// apperr itself.
func (t *Triage) loadBlocked(ctx context.Context, taskID string) (model.Task, error) {
	task, err := t.repo.GetTask(ctx, taskID)
	if err != nil {
		return model.Task{}, fmt.Errorf("triage: get task %s: %w", taskID, err)
	}
	if task.Status != model.StatusBlocked {
		return model.Task{}, ErrNotBlocked
	}
	return task, nil
}

func (t *Triage) record(ctx context.Context, task model.Task, eventType model.TaskEventType, actor, comment string, data map[string]any, now time.Time) error {
	if err := t.repo.AddEvent(ctx, model.TaskEvent{
		ID: uuid.NewString(), TaskID: task.ID, ProjectID: task.ProjectID,
		EventType: eventType, Timestamp: now, Actor: actor, Data: data,
	}); err != nil {
		return fmt.Errorf("triage: record event: %w", err)
	}
	if comment != "" {
		if err := t.repo.AddComment(ctx, model.Comment{
			ID: uuid.NewString(), TaskID: task.ID, Author: actor,
			AuthorType: model.AuthorCoordinator, Content: comment,
			Type: model.CommentStatusChange, CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("triage: record comment: %w", err)
		}
	}
	return nil
}

// Unblock moves a blocked task back to ready, resetting its retry count and
// escalation flag (§4.6).
func (t *Triage) Unblock(ctx context.Context, taskID, actor string, now time.Time) error {
	task, err := t.loadBlocked(ctx, taskID)
	if err != nil {
		return err
	}
	task.Status = model.StatusReady
	task.AgentRetryCount = 0
	task.Escalated = false
	task.UpdatedAt = now
	if err := t.repo.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("triage: unblock %s: %w", taskID, err)
	}
	return t.record(ctx, task, model.EventStatusChanged, actor, "Unblocked by "+actor, map[string]any{"from": string(model.StatusBlocked), "to": string(model.StatusReady)}, now)
}

// Reassign moves a blocked task back to ready, optionally overriding its
// role and/or model, and resets its retry count (§4.6).
func (t *Triage) Reassign(ctx context.Context, taskID string, role *model.Role, assignModel *string, actor string, now time.Time) error {
	task, err := t.loadBlocked(ctx, taskID)
	if err != nil {
		return err
	}
	if role != nil {
		task.Role = *role
	}
	if assignModel != nil {
		task.AgentModel = *assignModel
	}
	task.Status = model.StatusReady
	task.AgentRetryCount = 0
	task.UpdatedAt = now
	if err := t.repo.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("triage: reassign %s: %w", taskID, err)
	}
	return t.record(ctx, task, model.EventStatusChanged, actor, "Reassigned by "+actor, map[string]any{"from": string(model.StatusBlocked), "to": string(model.StatusReady), "role": string(task.Role)}, now)
}

// Split closes a blocked task as done and creates each subtask in backlog
// (§4.6), recording the new subtask ids in the event data.
func (t *Triage) Split(ctx context.Context, taskID string, subtasks []SubtaskSpec, actor string, now time.Time) error {
	task, err := t.loadBlocked(ctx, taskID)
	if err != nil {
		return err
	}

	subtaskIDs := make([]string, 0, len(subtasks))
	for i, spec := range subtasks {
		sub := model.Task{
			ID: uuid.NewString(), ProjectID: task.ProjectID, Title: spec.Title,
			Description: spec.Description, Status: model.StatusBacklog,
			Priority: spec.Priority, Role: spec.Role, Position: i,
			CreatedAt: now, UpdatedAt: now,
		}
		if err := t.repo.CreateTask(ctx, sub); err != nil {
			return fmt.Errorf("triage: split %s: create subtask: %w", taskID, err)
		}
		subtaskIDs = append(subtaskIDs, sub.ID)
	}

	task.Status = model.StatusDone
	task.Resolution = model.ResolutionDiscarded
	task.CompletedAt = &now
	task.UpdatedAt = now
	if err := t.repo.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("triage: split %s: close parent: %w", taskID, err)
	}

	return t.record(ctx, task, model.EventStatusChanged, actor, fmt.Sprintf("Split into %d subtasks by %s", len(subtaskIDs), actor), map[string]any{"from": string(model.StatusBlocked), "to": string(model.StatusDone), "subtaskIds": subtaskIDs}, now)
}

// Kill moves a blocked task back to backlog with no subtasks (§4.6).
func (t *Triage) Kill(ctx context.Context, taskID, reason, actor string, now time.Time) error {
	task, err := t.loadBlocked(ctx, taskID)
	if err != nil {
		return err
	}
	task.Status = model.StatusBacklog
	task.AgentSessionKey = ""
	task.AgentModel = ""
	task.AgentRetryCount = 0
	task.Escalated = false
	task.UpdatedAt = now
	if err := t.repo.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("triage: kill %s: %w", taskID, err)
	}
	return t.record(ctx, task, model.EventStatusChanged, actor, "Killed by "+actor+": "+reason, map[string]any{"from": string(model.StatusBlocked), "to": string(model.StatusBacklog), "reason": reason}, now)
}

// Escalate keeps a task blocked but marks it escalated and raises a critical
// notification (§4.6).
func (t *Triage) Escalate(ctx context.Context, taskID, reason, actor string, now time.Time) error {
	task, err := t.loadBlocked(ctx, taskID)
	if err != nil {
		return err
	}
	task.Escalated = true
	task.EscalatedAt = &now
	task.UpdatedAt = now
	if err := t.repo.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("triage: escalate %s: %w", taskID, err)
	}

	if err := t.repo.AddNotification(ctx, model.Notification{
		ID: uuid.NewString(), TaskID: task.ID, ProjectID: task.ProjectID,
		Type: model.NotificationEscalation, Severity: model.NotifyCritical,
		Title: "Task escalated: " + task.Title, Message: reason, CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("triage: escalate %s: notify: %w", taskID, err)
	}

	return t.record(ctx, task, model.EventTriageEscalated, actor, "Escalated by "+actor+": "+reason, map[string]any{"reason": reason}, now)
}

// BlockerComment returns the latest type=message comment on a task, the
// heuristic preserved from the Open Question in §9 (no dedicated blocker
// comment type exists; see DESIGN.md for the decision record).
func (t *Triage) BlockerComment(ctx context.Context, taskID string) (model.Comment, bool, error) {
	comments, err := t.repo.ListCommentsByTask(ctx, taskID)
	if err != nil {
		return model.Comment{}, false, fmt.Errorf("triage: blocker comment for %s: %w", taskID, err)
	}
	for i := len(comments) - 1; i >= 0; i-- {
		if comments[i].Type == model.CommentMessage {
			return comments[i], true, nil
		}
	}
	return model.Comment{}, false, nil
}

// PendingSignal reports the task's unanswered blocking signal, if any,
// which takes precedence over other blocked-task reasons in the gate
// aggregator (§4.6 "A pending signal ... takes precedence").
func (t *Triage) PendingSignal(ctx context.Context, task model.Task) (model.Signal, bool, error) {
	sigs, err := t.repo.ListPendingBlocking(ctx, task.ProjectID)
	if err != nil {
		return model.Signal{}, false, fmt.Errorf("triage: pending signal for %s: %w", task.ID, err)
	}
	for _, s := range sigs {
		if s.TaskID == task.ID {
			return s, true, nil
		}
	}
	return model.Signal{}, false, nil
}
