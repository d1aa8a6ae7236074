// Package cycle implements the per-project cycle driver and its three
// phases (cleanup, review, work), the triage machine, the gate aggregator,
// and the admission/capacity controller (§4.1-§4.7, §4.9). Grounded on
// orchestrator.go's runCycle phase-sequencing shape and
// worktree_manager.go's CanStartDevWork/merge-queue retry idiom, adapted
// from a fixed PM/Dev/QA/UX/Security pipeline to the spec's
// backlog/ready/in_progress/in_review/blocked/done kanban machine.
package cycle

import (
	"context"
	"time"

	"github.com/madhatter5501/workloop/internal/model"
)

// Repository is the document-store contract every phase depends on (§6.2).
// It is satisfied by internal/store.Store; phases never import the store
// package directly so a reactive document database could stand in for it
// without any phase code changing (§9 design notes).
type Repository interface {
	GetProject(ctx context.Context, id string) (model.Project, error)
	ListEnabledProjects(ctx context.Context) ([]model.Project, error)

	CreateTask(ctx context.Context, t model.Task) error
	GetTask(ctx context.Context, id string) (model.Task, error)
	ListTasksByProjectStatus(ctx context.Context, projectID string, status model.TaskStatus) ([]model.Task, error)
	ListTasksByAssignee(ctx context.Context, projectID string, statuses []model.TaskStatus) ([]model.Task, error)
	UpdateTask(ctx context.Context, t model.Task) error
	ClaimTask(ctx context.Context, taskID, sessionKey, agentModel string, startedAt time.Time) (model.Task, error)

	AddDependency(ctx context.Context, taskID, dependsOnID string, now time.Time) error
	ListDependencies(ctx context.Context, taskID string) ([]model.TaskDependency, error)
	ListDependents(ctx context.Context, taskID string) ([]model.TaskDependency, error)
	IncompleteDependencies(ctx context.Context, taskID string) ([]string, error)

	AddComment(ctx context.Context, c model.Comment) error
	ListCommentsByTask(ctx context.Context, taskID string) ([]model.Comment, error)
	ListPendingRequestInput(ctx context.Context, projectID string) ([]model.Comment, error)
	RespondComment(ctx context.Context, commentID string, respondedAt time.Time) error

	AddSignal(ctx context.Context, sig model.Signal) error
	GetSignal(ctx context.Context, id string) (model.Signal, error)
	ListSignalsByTask(ctx context.Context, taskID string) ([]model.Signal, error)
	ListPendingBlocking(ctx context.Context, projectID string) ([]model.Signal, error)
	RespondSignal(ctx context.Context, signalID, response string, respondedAt time.Time) error
	MarkSignalDelivered(ctx context.Context, signalID string, deliveredAt time.Time) error

	UpsertSession(ctx context.Context, sess model.Session) error
	GetSession(ctx context.Context, key string) (model.Session, error)

	AddNotification(ctx context.Context, n model.Notification) error
	ListUnreadEscalations(ctx context.Context, projectID string) ([]model.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	AddEvent(ctx context.Context, e model.TaskEvent) error
	ListEventsByTask(ctx context.Context, taskID string) ([]model.TaskEvent, error)

	GetActivePromptVersion(ctx context.Context, role model.Role, promptModel string) (model.PromptVersion, error)
	CreatePromptVersion(ctx context.Context, id string, role model.Role, promptModel, content string, makeActive bool, now time.Time) (model.PromptVersion, error)

	GetConfigValue(ctx context.Context, key string) (string, bool, error)
	SetConfigValue(ctx context.Context, key, value string) error
}
