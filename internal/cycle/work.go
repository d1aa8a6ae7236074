package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/config"
	"github.com/madhatter5501/workloop/internal/model"
	"github.com/madhatter5501/workloop/internal/prompt"
)

// Work is the work phase (§4.5): it claims at most one ready task per cycle
// and spawns its role agent. Grounded on orchestrator.go's
// processApprovedToRefining claim-then-spawn shape, adapted from the
// teacher's single fixed PM->Dev->QA chain to a capacity-gated claim over
// an arbitrary-role ready queue.
type Work struct {
	repo      Repository
	agents    AgentSpawner
	admission *Admission
	cfg       config.Config
	log       *slog.Logger
}

// NewWork constructs a Work phase.
func NewWork(repo Repository, agents AgentSpawner, admission *Admission, cfg config.Config, log *slog.Logger) *Work {
	return &Work{repo: repo, agents: agents, admission: admission, cfg: cfg, log: log}
}

// Run executes §4.5 steps 1-4 for one project.
func (w *Work) Run(ctx context.Context, project model.Project, now time.Time) error {
	// Step 1: global, per-project and dev-role capacity; any denial ends the
	// phase. Other roles' limits are checked per candidate in tryClaim, since
	// role varies per task.
	if reason := w.admission.Check(project.ID, model.RoleDev); reason != DenialNone {
		w.log.Info("work: capacity denied", "project", project.Slug, "reason", reason)
		return nil
	}

	// Step 2.
	ready, err := w.repo.ListTasksByProjectStatus(ctx, project.ID, model.StatusReady)
	if err != nil {
		return fmt.Errorf("work: list ready tasks: %w", err)
	}

	// Step 3.
	model.ClaimSort(ready)

	// Step 4.
	for _, candidate := range ready {
		claimed, done, err := w.tryClaim(ctx, project, candidate, now)
		if err != nil {
			w.log.Warn("work: candidate failed", "task_id", candidate.ID, "error", err)
		}
		if claimed {
			return nil
		}
		if done {
			return nil
		}
	}
	return nil
}

// tryClaim attempts to claim and spawn a single candidate task. claimed
// reports whether a claim succeeded (regardless of whether the spawn that
// followed also succeeded) -- per §4.5 step 4 the phase claims at most one
// task per cycle and returns either way.
func (w *Work) tryClaim(ctx context.Context, project model.Project, task model.Task, now time.Time) (claimed bool, done bool, err error) {
	if reason := w.admission.Check(project.ID, task.Role); reason != DenialNone {
		return false, false, nil
	}

	incomplete, err := w.repo.IncompleteDependencies(ctx, task.ID)
	if err != nil {
		return false, false, fmt.Errorf("incomplete dependencies: %w", err)
	}
	if len(incomplete) > 0 {
		return false, false, nil
	}

	taskModel := model.ModelForRole(task.Role)
	sessionKey := model.WorkLoopSessionKey(task.Role, task.ID)

	claimedTask, err := w.repo.ClaimTask(ctx, task.ID, sessionKey, taskModel, now)
	if err != nil {
		if errors.Is(err, apperr.ErrClaimConflict) {
			w.log.Info("work: claim conflict", "task_id", task.ID)
			return false, false, nil
		}
		return false, false, fmt.Errorf("claim task: %w", err)
	}
	task = claimedTask

	soul, err := w.repo.GetActivePromptVersion(ctx, task.Role, taskModel)
	if err != nil {
		w.revertToReady(ctx, task, now)
		if errors.Is(err, apperr.ErrNoPromptVersion) {
			return true, false, prompt.NoActiveVersionError(task.Role, taskModel)
		}
		return true, false, fmt.Errorf("get active prompt version: %w", err)
	}

	comments, err := w.repo.ListCommentsByTask(ctx, task.ID)
	if err != nil {
		w.revertToReady(ctx, task, now)
		return true, false, fmt.Errorf("list comments: %w", err)
	}
	nonStatusComments := make([]model.Comment, 0, len(comments))
	for _, c := range comments {
		if c.Type != model.CommentStatusChange {
			nonStatusComments = append(nonStatusComments, c)
		}
	}

	signalQA, err := w.answeredSignalQA(ctx, task)
	if err != nil {
		w.revertToReady(ctx, task, now)
		return true, false, fmt.Errorf("collect signal qa: %w", err)
	}

	message, err := prompt.Build(soul, prompt.Input{
		Role: task.Role, Model: taskModel, Task: task,
		ProjectPath:  project.LocalPath,
		WorktreePath: worktreePathFor(project, task),
		SignalQA:     signalQA,
		Comments:     nonStatusComments,
		Branch:       task.DerivedBranch(),
	})
	if err != nil {
		w.revertToReady(ctx, task, now)
		return true, false, fmt.Errorf("build prompt: %w", err)
	}

	handle, sessionID, err := w.agents.Spawn(ctx, task.ID, project.ID, task.Role, message, taskModel, false, w.cfg.AgentTimeoutSeconds, now)
	if err != nil {
		w.revertToReady(ctx, task, now)
		return true, false, fmt.Errorf("spawn agent: %w", err)
	}

	task.SessionID = sessionID
	task.AgentSessionKey = handle.SessionKey
	task.AgentModel = taskModel
	task.AgentStartedAt = &now
	task.AgentLastActiveAt = &now
	task.UpdatedAt = now
	if err := w.repo.UpdateTask(ctx, task); err != nil {
		return true, false, fmt.Errorf("persist assignment: %w", err)
	}

	if err := w.repo.AddEvent(ctx, model.TaskEvent{
		ID: eventID(), TaskID: task.ID, ProjectID: task.ProjectID,
		EventType: model.EventAgentAssigned, Timestamp: now, Actor: "cycle",
		Data: map[string]any{"role": string(task.Role), "session_key": handle.SessionKey},
	}); err != nil {
		w.log.Warn("work: record agent_assigned failed", "task_id", task.ID, "error", err)
	}
	if err := w.repo.AddEvent(ctx, model.TaskEvent{
		ID: eventID(), TaskID: task.ID, ProjectID: task.ProjectID,
		EventType: model.EventStatusChanged, Timestamp: now, Actor: "cycle",
		Data: map[string]any{"from": string(model.StatusReady), "to": string(model.StatusInProgress)},
	}); err != nil {
		w.log.Warn("work: record status_changed failed", "task_id", task.ID, "error", err)
	}

	return true, false, nil
}

// revertToReady undoes a claim when the spawn pipeline fails after the
// atomic claim point, so the task isn't stranded in_progress with no agent.
func (w *Work) revertToReady(ctx context.Context, task model.Task, now time.Time) {
	task.Status = model.StatusReady
	task.AgentSessionKey = ""
	task.AgentModel = ""
	task.AgentStartedAt = nil
	task.UpdatedAt = now
	if err := w.repo.UpdateTask(ctx, task); err != nil {
		w.log.Warn("work: revert to ready failed", "task_id", task.ID, "error", err)
	}
}

// answeredSignalQA collects prior answered signals on this task as
// question/answer pairs for the PM branch template (§4.8 step 2).
func (w *Work) answeredSignalQA(ctx context.Context, task model.Task) ([]prompt.QAPair, error) {
	signals, err := w.repo.ListSignalsByTask(ctx, task.ID)
	if err != nil {
		return nil, err
	}
	var pairs []prompt.QAPair
	for _, s := range signals {
		if s.RespondedAt == nil {
			continue
		}
		pairs = append(pairs, prompt.QAPair{Question: s.Message, Answer: s.Response})
	}
	return pairs, nil
}
