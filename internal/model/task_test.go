package model

import "testing"

func TestWorktreePrefix_First8Hex(t *testing.T) {
	task := Task{ID: "0123456789abcdef"}
	if got := task.WorktreePrefix(); got != "01234567" {
		t.Fatalf("WorktreePrefix() = %q, want 01234567", got)
	}
}

func TestWorktreePrefix_ShortID(t *testing.T) {
	task := Task{ID: "abc"}
	if got := task.WorktreePrefix(); got != "abc" {
		t.Fatalf("WorktreePrefix() = %q, want abc unchanged", got)
	}
}

func TestDerivedBranch_UsesExistingBranch(t *testing.T) {
	task := Task{ID: "0123456789abcdef", Branch: "feature/custom"}
	if got := task.DerivedBranch(); got != "feature/custom" {
		t.Fatalf("DerivedBranch() = %q, want feature/custom", got)
	}
}

func TestDerivedBranch_FallsBackToFixPrefix(t *testing.T) {
	task := Task{ID: "0123456789abcdef"}
	if got := task.DerivedBranch(); got != "fix/01234567" {
		t.Fatalf("DerivedBranch() = %q, want fix/01234567", got)
	}
}

func TestIsGhostEligible(t *testing.T) {
	cases := []struct {
		status TaskStatus
		want   bool
	}{
		{StatusInProgress, true},
		{StatusInReview, true},
		{StatusReady, false},
		{StatusBacklog, false},
		{StatusBlocked, false},
		{StatusDone, false},
	}
	for _, c := range cases {
		task := Task{Status: c.status}
		if got := task.IsGhostEligible(); got != c.want {
			t.Errorf("IsGhostEligible(%s) = %v, want %v", c.status, got, c.want)
		}
	}
}

func TestHasLiveAgent(t *testing.T) {
	if (Task{}).HasLiveAgent() {
		t.Fatalf("empty session key should report no live agent")
	}
	if !(Task{AgentSessionKey: "workloop:dev:t1"}).HasLiveAgent() {
		t.Fatalf("non-empty session key should report a live agent")
	}
}

// TestClaimSort verifies §4.5 step 3: priority ascending rank, then
// position ascending within the same priority.
func TestClaimSort(t *testing.T) {
	tasks := []Task{
		{ID: "low-1", Priority: PriorityLow, Position: 0},
		{ID: "urgent-1", Priority: PriorityUrgent, Position: 5},
		{ID: "high-2", Priority: PriorityHigh, Position: 2},
		{ID: "high-1", Priority: PriorityHigh, Position: 1},
	}
	ClaimSort(tasks)
	want := []string{"urgent-1", "high-1", "high-2", "low-1"}
	for i, id := range want {
		if tasks[i].ID != id {
			t.Fatalf("position %d: got %s, want %s (order: %v)", i, tasks[i].ID, id, tasks)
		}
	}
}
