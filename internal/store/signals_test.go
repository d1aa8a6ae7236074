package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
)

func seedSignal(t *testing.T, s *Store, ctx context.Context, taskID string, kind model.SignalKind, severity model.SignalSeverity, createdAt time.Time) model.Signal {
	t.Helper()
	sig := model.Signal{
		ID: uuid.NewString(), TaskID: taskID, SessionKey: "workloop:dev:" + taskID,
		Kind: kind, Severity: severity, Message: "question?",
		Blocking: kind.Blocking(), CreatedAt: createdAt,
	}
	if err := s.AddSignal(ctx, sig); err != nil {
		t.Fatalf("seed signal: %v", err)
	}
	return sig
}

// TestRespondSignal_IdempotentByActor verifies §8's idempotence case: a
// second response to the same signal fails, the stored row unchanged.
func TestRespondSignal_IdempotentByActor(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s, ctx)
	task := seedTask(t, s, ctx, project.ID, model.StatusInProgress, model.PriorityMedium, 0)
	sig := seedSignal(t, s, ctx, task.ID, model.SignalQuestion, model.SeverityNormal, time.Now())

	if err := s.RespondSignal(ctx, sig.ID, "first answer", time.Now()); err != nil {
		t.Fatalf("first respond: %v", err)
	}
	if err := s.RespondSignal(ctx, sig.ID, "second answer", time.Now()); err != apperr.ErrAlreadyResponded {
		t.Fatalf("second respond: got %v, want ErrAlreadyResponded", err)
	}

	got, err := s.GetSignal(ctx, sig.ID)
	if err != nil {
		t.Fatalf("get signal: %v", err)
	}
	if got.Response != "first answer" {
		t.Fatalf("response = %q, want %q (must not change on repeat)", got.Response, "first answer")
	}
}

// TestSignalKind_BlockingInvariant verifies §8 property 5: fyi is never
// blocking, every other kind always is.
func TestSignalKind_BlockingInvariant(t *testing.T) {
	cases := []struct {
		kind     model.SignalKind
		blocking bool
	}{
		{model.SignalFYI, false},
		{model.SignalQuestion, true},
		{model.SignalBlocker, true},
		{model.SignalAlert, true},
	}
	for _, c := range cases {
		if got := c.kind.Blocking(); got != c.blocking {
			t.Errorf("%s.Blocking() = %v, want %v", c.kind, got, c.blocking)
		}
	}
}

// TestListPendingBlocking_SortOrder verifies §4.9: critical first, then
// high, then normal; ties broken newest-first.
func TestListPendingBlocking_SortOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s, ctx)
	task := seedTask(t, s, ctx, project.ID, model.StatusInProgress, model.PriorityMedium, 0)

	base := time.Now().Add(-1 * time.Hour)
	older := seedSignal(t, s, ctx, task.ID, model.SignalAlert, model.SeverityCritical, base)
	newer := seedSignal(t, s, ctx, task.ID, model.SignalAlert, model.SeverityCritical, base.Add(time.Minute))
	high := seedSignal(t, s, ctx, task.ID, model.SignalQuestion, model.SeverityHigh, base.Add(2*time.Minute))
	normal := seedSignal(t, s, ctx, task.ID, model.SignalQuestion, model.SeverityNormal, base.Add(3*time.Minute))

	sigs, err := s.ListPendingBlocking(ctx, project.ID)
	if err != nil {
		t.Fatalf("list pending blocking: %v", err)
	}
	if len(sigs) != 4 {
		t.Fatalf("len(sigs) = %d, want 4", len(sigs))
	}
	want := []string{newer.ID, older.ID, high.ID, normal.ID}
	for i, id := range want {
		if sigs[i].ID != id {
			t.Fatalf("position %d: got %s, want %s", i, sigs[i].ID, id)
		}
	}
}

// TestListPendingBlocking_ExcludesResponded verifies that a responded
// signal never shows up in the pending list.
func TestListPendingBlocking_ExcludesResponded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	project := seedProject(t, s, ctx)
	task := seedTask(t, s, ctx, project.ID, model.StatusInProgress, model.PriorityMedium, 0)
	sig := seedSignal(t, s, ctx, task.ID, model.SignalBlocker, model.SeverityHigh, time.Now())

	if err := s.RespondSignal(ctx, sig.ID, "ok", time.Now()); err != nil {
		t.Fatalf("respond signal: %v", err)
	}

	sigs, err := s.ListPendingBlocking(ctx, project.ID)
	if err != nil {
		t.Fatalf("list pending blocking: %v", err)
	}
	if len(sigs) != 0 {
		t.Fatalf("len(sigs) = %d, want 0", len(sigs))
	}
}
