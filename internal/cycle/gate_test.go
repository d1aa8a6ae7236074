package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/madhatter5501/workloop/internal/config"
	"github.com/madhatter5501/workloop/internal/model"
	"github.com/madhatter5501/workloop/internal/store"
)

func newGateTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/workloop.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedGateProject(t *testing.T, s *store.Store, ctx context.Context) model.Project {
	t.Helper()
	now := time.Now()
	p := model.Project{
		ID: uuid.NewString(), Slug: "p1", Name: "Project One",
		WorkLoopEnabled: true, WorkLoopSchedule: "*/5 * * * *",
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("seed project: %v", err)
	}
	return p
}

func seedGateTask(t *testing.T, s *store.Store, ctx context.Context, projectID string, status model.TaskStatus, updatedAt time.Time) model.Task {
	t.Helper()
	now := time.Now()
	task := model.Task{
		ID: uuid.NewString(), ProjectID: projectID, Title: "task", Status: status,
		Priority: model.PriorityMedium, Role: model.RoleDev,
		CreatedAt: now, UpdatedAt: updatedAt,
	}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("seed task: %v", err)
	}
	return task
}

// TestGate_Compute verifies §4.9: ready tasks exclude already-assigned or
// dependency-blocked ones, pendingDispatch covers backlog tasks whose
// dependencies are all satisfied, and stuck tasks only count past the age
// threshold.
func TestGate_Compute(t *testing.T) {
	s := newGateTestStore(t)
	ctx := context.Background()
	project := seedGateProject(t, s, ctx)
	now := time.Now()

	readyFree := seedGateTask(t, s, ctx, project.ID, model.StatusReady, now)

	readyAssigned := seedGateTask(t, s, ctx, project.ID, model.StatusReady, now)
	readyAssigned.Assignee = "someone"
	if err := s.UpdateTask(ctx, readyAssigned); err != nil {
		t.Fatalf("update assigned: %v", err)
	}

	blocker := seedGateTask(t, s, ctx, project.ID, model.StatusInProgress, now)
	readyBlocked := seedGateTask(t, s, ctx, project.ID, model.StatusReady, now)
	if err := s.AddDependency(ctx, readyBlocked.ID, blocker.ID, now); err != nil {
		t.Fatalf("add dependency: %v", err)
	}

	doneDep := seedGateTask(t, s, ctx, project.ID, model.StatusDone, now)
	backlogDispatchable := seedGateTask(t, s, ctx, project.ID, model.StatusBacklog, now)
	if err := s.AddDependency(ctx, backlogDispatchable.ID, doneDep.ID, now); err != nil {
		t.Fatalf("add dependency: %v", err)
	}
	backlogWaiting := seedGateTask(t, s, ctx, project.ID, model.StatusBacklog, now)
	if err := s.AddDependency(ctx, backlogWaiting.ID, blocker.ID, now); err != nil {
		t.Fatalf("add dependency: %v", err)
	}

	staleStuck := seedGateTask(t, s, ctx, project.ID, model.StatusInProgress, now.Add(-3*time.Hour))
	_ = seedGateTask(t, s, ctx, project.ID, model.StatusInProgress, now.Add(-5*time.Minute))

	_ = seedGateTask(t, s, ctx, project.ID, model.StatusInReview, now)

	cfg := config.Config{StuckTaskAge: 2 * time.Hour}
	g := NewGate(s, cfg)

	d, err := g.Compute(ctx, project.ID, now)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	if d.ReadyTasks != 1 {
		t.Fatalf("ReadyTasks = %d, want 1", d.ReadyTasks)
	}
	if len(d.ReadyTaskList) != 1 || d.ReadyTaskList[0].ID != readyFree.ID {
		t.Fatalf("ReadyTaskList = %v, want [%s]", d.ReadyTaskList, readyFree.ID)
	}

	if d.PendingDispatch != 1 {
		t.Fatalf("PendingDispatch = %d, want 1", d.PendingDispatch)
	}
	if len(d.DispatchTaskList) != 1 || d.DispatchTaskList[0].ID != backlogDispatchable.ID {
		t.Fatalf("DispatchTaskList = %v, want [%s]", d.DispatchTaskList, backlogDispatchable.ID)
	}

	if d.StuckTasks != 1 || d.StuckTaskList[0].ID != staleStuck.ID {
		t.Fatalf("stuck mismatch: StuckTasks=%d list=%v", d.StuckTasks, d.StuckTaskList)
	}

	if d.ReviewTasks != 1 {
		t.Fatalf("ReviewTasks = %d, want 1", d.ReviewTasks)
	}
}

// TestGate_Compute_DetailCap verifies the spec's cap of 10 entries per
// capped list while the raw count stays accurate.
func TestGate_Compute_DetailCap(t *testing.T) {
	s := newGateTestStore(t)
	ctx := context.Background()
	project := seedGateProject(t, s, ctx)
	now := time.Now()

	for i := 0; i < 15; i++ {
		seedGateTask(t, s, ctx, project.ID, model.StatusReady, now)
	}

	g := NewGate(s, config.Config{StuckTaskAge: 2 * time.Hour})
	d, err := g.Compute(ctx, project.ID, now)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if d.ReadyTasks != 15 {
		t.Fatalf("ReadyTasks = %d, want 15", d.ReadyTasks)
	}
	if len(d.ReadyTaskList) != detailCap {
		t.Fatalf("len(ReadyTaskList) = %d, want %d", len(d.ReadyTaskList), detailCap)
	}
}

// TestGate_NeedsAttention_ReasonOrder verifies §8 property 6: reasons surface
// in the fixed priority order regardless of which dimensions are nonzero.
func TestGate_NeedsAttention_ReasonOrder(t *testing.T) {
	d := model.GateDetails{
		PendingInputs:     1,
		UnreadEscalations: 1,
		ReadyTasks:        1,
	}
	if !d.NeedsAttention() {
		t.Fatalf("expected NeedsAttention to be true")
	}
	reasons := d.Reasons()
	want := []string{"unread escalations", "pending inputs", "ready tasks"}
	if len(reasons) != len(want) {
		t.Fatalf("reasons = %v, want %v", reasons, want)
	}
	for i := range want {
		if reasons[i] != want[i] {
			t.Fatalf("reasons = %v, want %v", reasons, want)
		}
	}
	if got := Reason(d); got != "unread escalations; pending inputs; ready tasks" {
		t.Fatalf("Reason() = %q", got)
	}
}
