package cycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/browsertabs"
	"github.com/madhatter5501/workloop/internal/config"
	"github.com/madhatter5501/workloop/internal/github"
	"github.com/madhatter5501/workloop/internal/model"
	"github.com/madhatter5501/workloop/internal/worktree"
)

// AgentReaper is the subset of internal/agent.Manager the cleanup phase's
// ghost sweep needs.
type AgentReaper interface {
	Reap(ctx context.Context, now time.Time) ([]model.AgentHandle, error)
}

// Cleanup runs the five independent per-cycle sweeps (§4.3). Grounded on
// background.go's janitor goroutine (ticker-driven map sweep) and
// worktree_manager.go's pool reconciliation, generalized here from a single
// in-memory pool check to five store/filesystem/network sweeps.
type Cleanup struct {
	repo   Repository
	agents AgentReaper
	gh     func(localPath string) *github.Client
	wt     func(localPath string) *worktree.Manager
	tabs   *browsertabs.Client
	cfg    config.Config
	log    *slog.Logger
}

// NewCleanup constructs a Cleanup phase. gh and wt are factories so each
// sweep can build a client rooted at the project under inspection, rather
// than this package holding a single process-wide working directory. tabs
// may be nil, disabling the stale-tab sweep.
func NewCleanup(repo Repository, agents AgentReaper, gh func(string) *github.Client, wt func(string) *worktree.Manager, tabs *browsertabs.Client, cfg config.Config, log *slog.Logger) *Cleanup {
	return &Cleanup{repo: repo, agents: agents, gh: gh, wt: wt, tabs: tabs, cfg: cfg, log: log}
}

// Run executes all five sweeps for one project. Each sweep's failure is
// logged and does not block the others (§4.3 "each independent of the
// others"), except the ghost sweep whose error is returned since it touches
// the in-memory agent map shared by every other phase.
func (c *Cleanup) Run(ctx context.Context, project model.Project, now time.Time) error {
	if err := c.ghostSweep(ctx, project, now); err != nil {
		return fmt.Errorf("cleanup: ghost sweep: %w", err)
	}

	if err := c.mergedPRSweep(ctx, project, now); err != nil {
		c.log.Warn("merged pr sweep failed", "project", project.Slug, "error", err)
	}

	if err := c.orphanWorktreeSweep(ctx, project, now); err != nil {
		c.log.Warn("orphan worktree sweep failed", "project", project.Slug, "error", err)
	}

	if err := c.mergedBranchSweep(ctx, project); err != nil {
		c.log.Warn("merged branch sweep failed", "project", project.Slug, "error", err)
	}

	if c.tabs != nil {
		closed := c.tabs.CloseStale(ctx)
		if closed > 0 {
			c.log.Info("closed stale browser tabs", "project", project.Slug, "count", closed)
		}
	}

	return nil
}

// ghostSweep blocks or logs tasks whose agent session is dead (§4.2,
// §4.3 step 1, S3). The blocking decision is driven off ListTasksByAssignee
// and each candidate's own sessions-table row -- the ground truth per §9 --
// rather than the process-local agent-handle map, which is empty after
// every restart and would otherwise never find a ghost again. agents.Reap
// is still called first so the in-memory map and recently-reaped cache the
// review/work phases depend on stay in sync with the sessions table; its
// return value plays no part in the blocking decision here.
func (c *Cleanup) ghostSweep(ctx context.Context, project model.Project, now time.Time) error {
	if _, err := c.agents.Reap(ctx, now); err != nil {
		return err
	}

	assigned, err := c.repo.ListTasksByAssignee(ctx, project.ID, []model.TaskStatus{model.StatusInProgress, model.StatusInReview})
	if err != nil {
		return fmt.Errorf("list assigned tasks: %w", err)
	}

	for _, task := range assigned {
		if !task.IsGhostEligible() {
			continue
		}
		ghost, err := c.isGhost(ctx, task, now)
		if err != nil {
			c.log.Warn("ghost sweep: session lookup failed", "task_id", task.ID, "session_key", task.AgentSessionKey, "error", err)
			continue
		}
		if !ghost {
			continue
		}

		if task.Status == model.StatusInReview {
			// In-review ghosts are logged only (§4.2): the reviewer's
			// verdict may still land as a PR comment/merge the review
			// phase or merged-PR sweep will pick up.
			c.log.Info("in-review ghost detected", "task_id", task.ID, "session_key", task.AgentSessionKey)
			continue
		}

		role := task.Role
		task.Status = model.StatusBlocked
		task.AgentSessionKey = ""
		task.AgentRetryCount = 0
		task.UpdatedAt = now
		if err := c.repo.UpdateTask(ctx, task); err != nil {
			c.log.Warn("ghost sweep: block task failed", "task_id", task.ID, "error", err)
			continue
		}
		if err := c.repo.AddEvent(ctx, model.TaskEvent{
			ID: uuid.NewString(), TaskID: task.ID, ProjectID: task.ProjectID,
			EventType: model.EventGhostTaskBlocked, Timestamp: now, Actor: "cleanup",
			Data: map[string]any{"role": string(role)},
		}); err != nil {
			c.log.Warn("ghost sweep: record event failed", "task_id", task.ID, "error", err)
		}
		if err := c.repo.AddComment(ctx, model.Comment{
			ID: uuid.NewString(), TaskID: task.ID, Author: "cleanup",
			AuthorType: model.AuthorCoordinator, Type: model.CommentStatusChange,
			Content:   "Agent session went silent; task moved back to blocked for triage.",
			CreatedAt: now,
		}); err != nil {
			c.log.Warn("ghost sweep: record comment failed", "task_id", task.ID, "error", err)
		}
	}
	return nil
}

// isGhost implements the two-case test of §4.2: (a) no session row at all
// once an in_progress task has run past the grace period, or (b) a session
// row whose status has gone completed/stale. Case (a) applies only to
// in_progress tasks -- an in_review task with no session row yet is not
// a ghost on its own, consistent with "in-review ghosts are logged only"
// meaning something to log in the first place.
func (c *Cleanup) isGhost(ctx context.Context, task model.Task, now time.Time) (bool, error) {
	sess, err := c.repo.GetSession(ctx, task.AgentSessionKey)
	if err == apperr.ErrNotFound {
		if task.Status != model.StatusInProgress {
			return false, nil
		}
		since := task.UpdatedAt
		if task.AgentStartedAt != nil {
			since = *task.AgentStartedAt
		}
		return now.Sub(since) > c.cfg.GhostGracePeriod, nil
	}
	if err != nil {
		return false, err
	}
	return sess.Reaped(), nil
}

// mergedPRSweep recovers tasks whose PR merged outside the review phase
// (§4.3 step 2).
func (c *Cleanup) mergedPRSweep(ctx context.Context, project model.Project, now time.Time) error {
	gh := c.gh(project.LocalPath)
	for _, status := range []model.TaskStatus{model.StatusInProgress, model.StatusInReview, model.StatusBlocked, model.StatusReady, model.StatusBacklog} {
		tasks, err := c.repo.ListTasksByProjectStatus(ctx, project.ID, status)
		if err != nil {
			return fmt.Errorf("list %s tasks: %w", status, err)
		}
		for _, t := range tasks {
			if t.PRNumber == nil {
				continue
			}
			pr, err := gh.ViewByNumber(ctx, *t.PRNumber)
			if err != nil {
				c.log.Warn("merged pr sweep: view pr failed", "task_id", t.ID, "pr", *t.PRNumber, "error", err)
				continue
			}
			if pr.State != github.PRStateMerged {
				continue
			}

			t.Status = model.StatusDone
			t.Resolution = model.ResolutionMerged
			t.AgentSessionKey = ""
			t.CompletedAt = &now
			t.UpdatedAt = now
			if err := c.repo.UpdateTask(ctx, t); err != nil {
				return fmt.Errorf("close merged task %s: %w", t.ID, err)
			}
			if err := c.repo.AddEvent(ctx, model.TaskEvent{
				ID: uuid.NewString(), TaskID: t.ID, ProjectID: t.ProjectID,
				EventType: model.EventPRMerged, Timestamp: now, Actor: "cleanup",
				Data: map[string]any{"pr_number": *t.PRNumber},
			}); err != nil {
				return fmt.Errorf("record pr_merged event %s: %w", t.ID, err)
			}
			if err := c.repo.AddEvent(ctx, model.TaskEvent{
				ID: uuid.NewString(), TaskID: t.ID, ProjectID: t.ProjectID,
				EventType: model.EventAutoCompleted, Timestamp: now, Actor: "cleanup",
				Data: map[string]any{"pr_number": *t.PRNumber},
			}); err != nil {
				return fmt.Errorf("record task_auto_completed_merged_pr event %s: %w", t.ID, err)
			}
			if err := c.repo.AddComment(ctx, model.Comment{
				ID: uuid.NewString(), TaskID: t.ID, Author: "cleanup",
				AuthorType: model.AuthorCoordinator, Type: model.CommentStatusChange,
				Content: fmt.Sprintf("PR #%d merged outside the review phase; task closed.", *t.PRNumber),
				CreatedAt: now,
			}); err != nil {
				return fmt.Errorf("record pr_merged comment %s: %w", t.ID, err)
			}
		}
	}
	return nil
}

// orphanWorktreeSweep removes clean worktrees left behind by tasks that
// have since finished (§4.3 step 3).
func (c *Cleanup) orphanWorktreeSweep(ctx context.Context, project model.Project, now time.Time) error {
	root := project.WorktreesRoot()
	if root == "" {
		return nil
	}
	fixRoot := filepath.Join(root, "fix")
	entries, err := os.ReadDir(fixRoot)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", fixRoot, err)
	}

	done, err := c.repo.ListTasksByProjectStatus(ctx, project.ID, model.StatusDone)
	if err != nil {
		return fmt.Errorf("list done tasks: %w", err)
	}
	donePrefixes := make(map[string]bool, len(done))
	for _, t := range done {
		donePrefixes[t.WorktreePrefix()] = true
	}

	wt := c.wt(project.LocalPath)
	for _, e := range entries {
		if !e.IsDir() || !donePrefixes[e.Name()] {
			continue
		}
		path := filepath.Join(fixRoot, e.Name())
		clean, err := wt.IsClean(ctx, path)
		if err != nil {
			c.log.Warn("orphan worktree sweep: status check failed", "path", path, "error", err)
			continue
		}
		if !clean {
			continue
		}
		if err := wt.Remove(ctx, path, true); err != nil {
			c.log.Warn("orphan worktree sweep: remove failed", "path", path, "error", err)
			continue
		}
		c.log.Info("removed orphan worktree", "project", project.Slug, "path", path)
	}
	return nil
}

// mergedBranchSweep deletes the remote branch of every done, merged task
// (§4.3 step 4). It does not check whether the branch still exists on
// origin; a failed delete is logged and the sweep moves on.
func (c *Cleanup) mergedBranchSweep(ctx context.Context, project model.Project) error {
	gh := c.gh(project.LocalPath)
	done, err := c.repo.ListTasksByProjectStatus(ctx, project.ID, model.StatusDone)
	if err != nil {
		return fmt.Errorf("list done tasks: %w", err)
	}
	for _, t := range done {
		if t.Branch == "" || t.PRNumber == nil || t.Resolution != model.ResolutionMerged {
			continue
		}
		pr, err := gh.ViewByNumber(ctx, *t.PRNumber)
		if err != nil || pr.State != github.PRStateMerged {
			continue
		}
		if err := gh.DeleteRemoteBranch(ctx, t.Branch); err != nil {
			c.log.Warn("merged branch sweep: delete failed", "task_id", t.ID, "branch", t.Branch, "error", err)
		}
	}
	return nil
}
