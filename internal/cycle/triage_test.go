package cycle

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/madhatter5501/workloop/internal/model"
	"github.com/madhatter5501/workloop/internal/store"
)

func newTriageTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(t.TempDir() + "/workloop.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func seedTriageProject(t *testing.T, s *store.Store, ctx context.Context) model.Project {
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

func seedBlockedTask(t *testing.T, s *store.Store, ctx context.Context, projectID string) model.Task {
	t.Helper()
	now := time.Now()
	task := model.Task{
		ID: uuid.NewString(), ProjectID: projectID, Title: "blocked task",
		Status: model.StatusBlocked, Priority: model.PriorityMedium, Role: model.RoleDev,
		AgentSessionKey: "workloop:dev:stale", AgentModel: "moonshot/kimi-for-coding",
		AgentRetryCount: 2, CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateTask(ctx, task); err != nil {
		t.Fatalf("seed blocked task: %v", err)
	}
	return task
}

// TestTriage_RequiresBlockedStatus verifies §4.6: every triage operation
// only applies to blocked tasks.
func TestTriage_RequiresBlockedStatus(t *testing.T) {
	s := newTriageTestStore(t)
	ctx := context.Background()
	project := seedTriageProject(t, s, ctx)
	now := time.Now()
	ready := model.Task{
		ID: uuid.NewString(), ProjectID: project.ID, Title: "ready task",
		Status: model.StatusReady, Priority: model.PriorityMedium, Role: model.RoleDev,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := s.CreateTask(ctx, ready); err != nil {
		t.Fatalf("seed ready task: %v", err)
	}

	triage := NewTriage(s)
	if err := triage.Unblock(ctx, ready.ID, "coordinator", now); err != ErrNotBlocked {
		t.Fatalf("unblock non-blocked task: got %v, want ErrNotBlocked", err)
	}
}

// TestTriage_Unblock verifies §4.6: a blocked task returns to ready with its
// retry count and escalation flag cleared.
func TestTriage_Unblock(t *testing.T) {
	s := newTriageTestStore(t)
	ctx := context.Background()
	project := seedTriageProject(t, s, ctx)
	task := seedBlockedTask(t, s, ctx, project.ID)
	task.Escalated = true
	if err := s.UpdateTask(ctx, task); err != nil {
		t.Fatalf("mark escalated: %v", err)
	}

	triage := NewTriage(s)
	now := time.Now()
	if err := triage.Unblock(ctx, task.ID, "coordinator", now); err != nil {
		t.Fatalf("unblock: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != model.StatusReady {
		t.Fatalf("status = %s, want ready", got.Status)
	}
	if got.AgentRetryCount != 0 {
		t.Fatalf("retry count = %d, want 0", got.AgentRetryCount)
	}
	if got.Escalated {
		t.Fatalf("escalated should be cleared")
	}

	events, err := s.ListEventsByTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != model.EventStatusChanged {
		t.Fatalf("events = %v, want one status_changed", events)
	}
}

// TestTriage_Reassign verifies §4.6: role and model can be overridden, and
// omitting them (nil) leaves the existing values alone.
func TestTriage_Reassign(t *testing.T) {
	s := newTriageTestStore(t)
	ctx := context.Background()
	project := seedTriageProject(t, s, ctx)
	task := seedBlockedTask(t, s, ctx, project.ID)

	triage := NewTriage(s)
	newRole := model.RoleReviewer
	newModel := "gpt"
	if err := triage.Reassign(ctx, task.ID, &newRole, &newModel, "coordinator", time.Now()); err != nil {
		t.Fatalf("reassign: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != model.StatusReady {
		t.Fatalf("status = %s, want ready", got.Status)
	}
	if got.Role != model.RoleReviewer {
		t.Fatalf("role = %s, want reviewer", got.Role)
	}
	if got.AgentModel != "gpt" {
		t.Fatalf("agent model = %q, want gpt", got.AgentModel)
	}
	if got.AgentRetryCount != 0 {
		t.Fatalf("retry count = %d, want 0", got.AgentRetryCount)
	}
}

// TestTriage_Split verifies §4.6: the parent closes as discarded and each
// subtask spec becomes its own backlog task.
func TestTriage_Split(t *testing.T) {
	s := newTriageTestStore(t)
	ctx := context.Background()
	project := seedTriageProject(t, s, ctx)
	task := seedBlockedTask(t, s, ctx, project.ID)

	triage := NewTriage(s)
	specs := []SubtaskSpec{
		{Title: "part one", Priority: model.PriorityHigh, Role: model.RoleDev},
		{Title: "part two", Priority: model.PriorityMedium, Role: model.RoleDev},
	}
	if err := triage.Split(ctx, task.ID, specs, "coordinator", time.Now()); err != nil {
		t.Fatalf("split: %v", err)
	}

	parent, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get parent: %v", err)
	}
	if parent.Status != model.StatusDone || parent.Resolution != model.ResolutionDiscarded {
		t.Fatalf("parent = %+v, want done/discarded", parent)
	}
	if parent.CompletedAt == nil {
		t.Fatalf("parent completed_at not set")
	}

	backlog, err := s.ListTasksByProjectStatus(ctx, project.ID, model.StatusBacklog)
	if err != nil {
		t.Fatalf("list backlog: %v", err)
	}
	if len(backlog) != 2 {
		t.Fatalf("backlog = %v, want 2 subtasks", backlog)
	}
}

// TestTriage_Kill verifies §4.6: the task returns to backlog with its agent
// fields cleared, no subtasks created.
func TestTriage_Kill(t *testing.T) {
	s := newTriageTestStore(t)
	ctx := context.Background()
	project := seedTriageProject(t, s, ctx)
	task := seedBlockedTask(t, s, ctx, project.ID)

	triage := NewTriage(s)
	if err := triage.Kill(ctx, task.ID, "not worth pursuing", "coordinator", time.Now()); err != nil {
		t.Fatalf("kill: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != model.StatusBacklog {
		t.Fatalf("status = %s, want backlog", got.Status)
	}
	if got.AgentSessionKey != "" || got.AgentModel != "" {
		t.Fatalf("agent fields not cleared: %+v", got)
	}
}

// TestTriage_Escalate verifies §4.6: the task stays blocked but is flagged
// escalated, and a critical notification is raised.
func TestTriage_Escalate(t *testing.T) {
	s := newTriageTestStore(t)
	ctx := context.Background()
	project := seedTriageProject(t, s, ctx)
	task := seedBlockedTask(t, s, ctx, project.ID)

	triage := NewTriage(s)
	if err := triage.Escalate(ctx, task.ID, "needs a human", "coordinator", time.Now()); err != nil {
		t.Fatalf("escalate: %v", err)
	}

	got, err := s.GetTask(ctx, task.ID)
	if err != nil {
		t.Fatalf("get task: %v", err)
	}
	if got.Status != model.StatusBlocked {
		t.Fatalf("status = %s, want blocked (escalate does not unblock)", got.Status)
	}
	if !got.Escalated || got.EscalatedAt == nil {
		t.Fatalf("task not marked escalated: %+v", got)
	}

	notes, err := s.ListUnreadEscalations(ctx, project.ID)
	if err != nil {
		t.Fatalf("list unread escalations: %v", err)
	}
	if len(notes) != 1 || notes[0].Severity != model.NotifyCritical {
		t.Fatalf("escalation notifications = %v, want one critical", notes)
	}
}

// TestTriage_BlockerComment verifies the latest type=message comment is
// returned, ignoring status_change comments.
func TestTriage_BlockerComment(t *testing.T) {
	s := newTriageTestStore(t)
	ctx := context.Background()
	project := seedTriageProject(t, s, ctx)
	task := seedBlockedTask(t, s, ctx, project.ID)

	now := time.Now()
	if err := s.AddComment(ctx, model.Comment{
		ID: uuid.NewString(), TaskID: task.ID, Author: "cycle", AuthorType: model.AuthorCoordinator,
		Content: "moved to blocked", Type: model.CommentStatusChange, CreatedAt: now,
	}); err != nil {
		t.Fatalf("add status comment: %v", err)
	}
	if err := s.AddComment(ctx, model.Comment{
		ID: uuid.NewString(), TaskID: task.ID, Author: "dev-agent", AuthorType: model.AuthorAgent,
		Content: "stuck on missing credentials", Type: model.CommentMessage, CreatedAt: now.Add(time.Minute),
	}); err != nil {
		t.Fatalf("add message comment: %v", err)
	}

	triage := NewTriage(s)
	got, found, err := triage.BlockerComment(ctx, task.ID)
	if err != nil {
		t.Fatalf("blocker comment: %v", err)
	}
	if !found {
		t.Fatalf("expected a blocker comment to be found")
	}
	if got.Content != "stuck on missing credentials" {
		t.Fatalf("content = %q, want the message comment", got.Content)
	}
}

// TestTriage_PendingSignal verifies a task's own unanswered blocking signal
// is surfaced, and tasks without one return found=false.
func TestTriage_PendingSignal(t *testing.T) {
	s := newTriageTestStore(t)
	ctx := context.Background()
	project := seedTriageProject(t, s, ctx)
	task := seedBlockedTask(t, s, ctx, project.ID)
	other := seedBlockedTask(t, s, ctx, project.ID)

	sig := model.Signal{
		ID: uuid.NewString(), TaskID: task.ID, SessionKey: "workloop:dev:" + task.ID,
		Kind: model.SignalBlocker, Severity: model.SeverityHigh, Message: "need input",
		Blocking: true, CreatedAt: time.Now(),
	}
	if err := s.AddSignal(ctx, sig); err != nil {
		t.Fatalf("add signal: %v", err)
	}

	triage := NewTriage(s)
	got, found, err := triage.PendingSignal(ctx, task)
	if err != nil {
		t.Fatalf("pending signal: %v", err)
	}
	if !found || got.ID != sig.ID {
		t.Fatalf("pending signal = %v found=%v, want %s", got, found, sig.ID)
	}

	_, found, err = triage.PendingSignal(ctx, other)
	if err != nil {
		t.Fatalf("pending signal for other task: %v", err)
	}
	if found {
		t.Fatalf("other task should have no pending signal")
	}
}
