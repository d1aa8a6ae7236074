package cycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/config"
	"github.com/madhatter5501/workloop/internal/github"
	"github.com/madhatter5501/workloop/internal/model"
	"github.com/madhatter5501/workloop/internal/prompt"
)

// AgentSpawner is the subset of internal/agent.Manager the review and work
// phases spawn through.
type AgentSpawner interface {
	Has(taskID string) bool
	IsRecentlyReaped(taskID string, role model.Role, now time.Time) bool
	Spawn(ctx context.Context, taskID, projectID string, role model.Role, message, spawnModel string, thinking bool, timeoutSeconds int, now time.Time) (model.AgentHandle, string, error)
}

// Review is the review phase (§4.4): it spawns a reviewer agent for each
// in_review task that has an open PR and no reviewer already assigned.
// Grounded on orchestrator.go's processReviewingStage, adapted from its
// fixed human-approval wait to a PR-lookup-then-spawn flow and a per-task
// (not per-phase) capacity check.
type Review struct {
	repo      Repository
	agents    AgentSpawner
	admission *Admission
	gh        func(localPath string) *github.Client
	cfg       config.Config
	log       *slog.Logger
}

// NewReview constructs a Review phase.
func NewReview(repo Repository, agents AgentSpawner, admission *Admission, gh func(string) *github.Client, cfg config.Config, log *slog.Logger) *Review {
	return &Review{repo: repo, agents: agents, admission: admission, gh: gh, cfg: cfg, log: log}
}

// Run drives every in_review task in the project through §4.4's six steps.
func (r *Review) Run(ctx context.Context, project model.Project, now time.Time) error {
	tasks, err := r.repo.ListTasksByProjectStatus(ctx, project.ID, model.StatusInReview)
	if err != nil {
		return fmt.Errorf("review: list in_review tasks: %w", err)
	}

	gh := r.gh(project.LocalPath)
	for _, task := range tasks {
		if err := r.runOne(ctx, project, gh, task, now); err != nil {
			r.log.Warn("review: task failed", "task_id", task.ID, "error", err)
		}
	}
	return nil
}

func (r *Review) runOne(ctx context.Context, project model.Project, gh *github.Client, task model.Task, now time.Time) error {
	// Step 1.
	if r.agents.Has(task.ID) || r.agents.IsRecentlyReaped(task.ID, model.RoleReviewer, now) {
		return nil
	}

	// Step 2.
	branch := task.DerivedBranch()

	// Step 3.
	pr, err := r.findPR(ctx, gh, task, branch)
	if err != nil {
		return fmt.Errorf("find pr: %w", err)
	}

	// Step 4.
	if pr == nil && task.PRNumber != nil {
		merged, err := gh.ViewByNumber(ctx, *task.PRNumber)
		if err != nil {
			return fmt.Errorf("view pr %d: %w", *task.PRNumber, err)
		}
		if merged.State == github.PRStateMerged {
			task.Status = model.StatusDone
			task.Resolution = model.ResolutionMerged
			task.AgentSessionKey = ""
			task.CompletedAt = &now
			task.UpdatedAt = now
			if err := r.repo.UpdateTask(ctx, task); err != nil {
				return fmt.Errorf("close merged task: %w", err)
			}
			return nil
		}
	}

	// Step 5.
	if pr == nil {
		return nil
	}

	// Step 6.
	if reason := r.admission.Check(project.ID, model.RoleReviewer); reason != DenialNone {
		r.log.Info("review: capacity denied", "task_id", task.ID, "reason", reason)
		return nil
	}

	reviewModel := model.ModelForRole(model.RoleReviewer)
	soul, err := r.repo.GetActivePromptVersion(ctx, model.RoleReviewer, reviewModel)
	if err != nil {
		if errors.Is(err, apperr.ErrNoPromptVersion) {
			return prompt.NoActiveVersionError(model.RoleReviewer, reviewModel)
		}
		return fmt.Errorf("get active prompt version: %w", err)
	}

	worktreePath := worktreePathFor(project, task)
	message, err := prompt.Build(soul, prompt.Input{
		Role: model.RoleReviewer, Model: reviewModel, Task: task,
		ProjectPath: project.LocalPath, WorktreePath: worktreePath,
		PRNumber: pr.Number, Branch: branch,
	})
	if err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}

	handle, sessionID, err := r.agents.Spawn(ctx, task.ID, project.ID, model.RoleReviewer, message, reviewModel, false, r.cfg.AgentTimeoutSeconds, now)
	if err != nil {
		return fmt.Errorf("spawn reviewer: %w", err)
	}

	task.SessionID = sessionID
	task.AgentSessionKey = handle.SessionKey
	task.AgentModel = reviewModel
	task.AgentStartedAt = &now
	task.AgentLastActiveAt = &now
	task.Branch = branch
	prNumber := pr.Number
	task.PRNumber = &prNumber
	task.UpdatedAt = now
	if err := r.repo.UpdateTask(ctx, task); err != nil {
		return fmt.Errorf("persist reviewer assignment: %w", err)
	}

	return r.repo.AddEvent(ctx, r.assignedEvent(task, handle, now))
}

func (r *Review) findPR(ctx context.Context, gh *github.Client, task model.Task, branch string) (*github.PR, error) {
	if task.PRNumber != nil {
		pr, err := gh.ViewByNumber(ctx, *task.PRNumber)
		if err != nil {
			return nil, err
		}
		if pr.State == github.PRStateOpen {
			return pr, nil
		}
		return nil, nil
	}
	return gh.FindByHeadBranch(ctx, branch)
}

func (r *Review) assignedEvent(task model.Task, handle model.AgentHandle, now time.Time) model.TaskEvent {
	return model.TaskEvent{
		ID: eventID(), TaskID: task.ID, ProjectID: task.ProjectID,
		EventType: model.EventAgentAssigned, Timestamp: now, Actor: "cycle",
		Data: map[string]any{"role": string(model.RoleReviewer), "session_key": handle.SessionKey},
	}
}
