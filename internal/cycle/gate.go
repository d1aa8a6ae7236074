package cycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/madhatter5501/workloop/internal/config"
	"github.com/madhatter5501/workloop/internal/model"
)

// detailCap is the maximum number of entries projected into each capped DTO
// list (§4.9: "Ready/stuck/review/dispatch lists are capped at 10").
const detailCap = 10

// Gate is the read-only attention aggregator (§4.9, glossary "Gate").
// Grounded structurally on orchestrator.go's GetStats board-status log line
// (a single read-only scan over every status bucket), extended with the
// signal/comment/notification sources the teacher's board never had.
type Gate struct {
	repo Repository
	cfg  config.Config
}

// NewGate constructs a Gate aggregator.
func NewGate(repo Repository, cfg config.Config) *Gate {
	return &Gate{repo: repo, cfg: cfg}
}

// Compute runs the single read-only query described in §4.9 for one
// project.
func (g *Gate) Compute(ctx context.Context, projectID string, now time.Time) (model.GateDetails, error) {
	var d model.GateDetails

	ready, err := g.repo.ListTasksByProjectStatus(ctx, projectID, model.StatusReady)
	if err != nil {
		return d, fmt.Errorf("gate: list ready tasks: %w", err)
	}
	for _, t := range ready {
		if t.Assignee != "" {
			continue
		}
		incomplete, err := g.repo.IncompleteDependencies(ctx, t.ID)
		if err != nil {
			return d, fmt.Errorf("gate: incomplete deps for %s: %w", t.ID, err)
		}
		if len(incomplete) > 0 {
			continue
		}
		d.ReadyTasks++
		appendSummary(&d.ReadyTaskList, t)
	}

	// pendingDispatch: backlog tasks whose dependencies are already all
	// done -- the tier just behind readyTasks, eligible for promotion to
	// ready but not yet promoted (Open Question decision, see DESIGN.md:
	// the spec names this count without defining its source query).
	backlog, err := g.repo.ListTasksByProjectStatus(ctx, projectID, model.StatusBacklog)
	if err != nil {
		return d, fmt.Errorf("gate: list backlog tasks: %w", err)
	}
	for _, t := range backlog {
		incomplete, err := g.repo.IncompleteDependencies(ctx, t.ID)
		if err != nil {
			return d, fmt.Errorf("gate: incomplete deps for %s: %w", t.ID, err)
		}
		if len(incomplete) > 0 {
			continue
		}
		d.PendingDispatch++
		appendSummary(&d.DispatchTaskList, t)
	}

	inProgress, err := g.repo.ListTasksByProjectStatus(ctx, projectID, model.StatusInProgress)
	if err != nil {
		return d, fmt.Errorf("gate: list in_progress tasks: %w", err)
	}
	for _, t := range inProgress {
		if now.Sub(t.UpdatedAt) < g.cfg.StuckTaskAge {
			continue
		}
		d.StuckTasks++
		appendSummary(&d.StuckTaskList, t)
	}

	inReview, err := g.repo.ListTasksByProjectStatus(ctx, projectID, model.StatusInReview)
	if err != nil {
		return d, fmt.Errorf("gate: list in_review tasks: %w", err)
	}
	d.ReviewTasks = len(inReview)
	for _, t := range inReview {
		appendSummary(&d.ReviewTaskList, t)
	}

	pendingInputs, err := g.repo.ListPendingRequestInput(ctx, projectID)
	if err != nil {
		return d, fmt.Errorf("gate: list pending request_input: %w", err)
	}
	d.PendingInputs = len(pendingInputs)

	escalations, err := g.repo.ListUnreadEscalations(ctx, projectID)
	if err != nil {
		return d, fmt.Errorf("gate: list unread escalations: %w", err)
	}
	d.UnreadEscalations = len(escalations)

	signals, err := g.repo.ListPendingBlocking(ctx, projectID)
	if err != nil {
		return d, fmt.Errorf("gate: list pending signals: %w", err)
	}
	d.PendingSignals = len(signals)
	if len(signals) > detailCap {
		signals = signals[:detailCap]
	}
	d.PendingSignalList = signals

	return d, nil
}

func appendSummary(list *[]model.TaskSummary, t model.Task) {
	if len(*list) >= detailCap {
		return
	}
	*list = append(*list, model.TaskSummary{ID: t.ID, Title: t.Title, Priority: t.Priority, Status: t.Status})
}

// Reason joins the active reasons in the fixed priority order (§4.9, §8
// property 6), matching model.GateDetails.Reasons but returning the
// already-joined string the coordinator-facing surface displays.
func Reason(d model.GateDetails) string {
	return strings.Join(d.Reasons(), "; ")
}
