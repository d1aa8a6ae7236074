package worktree

import (
	"context"
	"testing"
	"time"
)

type fakeRunner struct {
	outputs map[string]string
	calls   [][]string
}

func (f *fakeRunner) Run(ctx context.Context, cwd string, timeout time.Duration, name string, args ...string) (string, error) {
	f.calls = append(f.calls, args)
	key := ""
	if len(args) > 0 {
		key = args[0]
	}
	return f.outputs[key], nil
}

func TestCreate(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{}}
	m := NewManager(r, "/repo")
	if err := m.Create(context.Background(), "/repo-worktrees/fix/abc", "fix/abc", "main"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(r.calls) != 1 || r.calls[0][0] != "worktree" || r.calls[0][1] != "add" {
		t.Fatalf("calls = %v", r.calls)
	}
}

func TestRemove_ForceAppendsFlag(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{}}
	m := NewManager(r, "/repo")
	if err := m.Remove(context.Background(), "/repo-worktrees/fix/abc", true); err != nil {
		t.Fatalf("remove: %v", err)
	}
	found := false
	for _, a := range r.calls[0] {
		if a == "--force" {
			found = true
		}
	}
	if !found {
		t.Fatalf("calls = %v, want --force present", r.calls)
	}
}

func TestList_ParsesPorcelainOutput(t *testing.T) {
	r := &fakeRunner{outputs: map[string]string{
		"worktree": "worktree /repo\nHEAD abcd1234\nbranch refs/heads/main\n\nworktree /repo-worktrees/fix/abc\nHEAD ef012345\nbranch refs/heads/fix/abc\n",
	}}
	m := NewManager(r, "/repo")
	paths, err := m.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{"/repo", "/repo-worktrees/fix/abc"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Fatalf("paths = %v, want %v", paths, want)
		}
	}
}

func TestIsClean(t *testing.T) {
	clean := &fakeRunner{outputs: map[string]string{"status": ""}}
	m := NewManager(clean, "/repo")
	ok, err := m.IsClean(context.Background(), "/repo-worktrees/fix/abc")
	if err != nil {
		t.Fatalf("is clean: %v", err)
	}
	if !ok {
		t.Fatalf("expected clean worktree to report true")
	}

	dirty := &fakeRunner{outputs: map[string]string{"status": " M file.go"}}
	m2 := NewManager(dirty, "/repo")
	ok, err = m2.IsClean(context.Background(), "/repo-worktrees/fix/abc")
	if err != nil {
		t.Fatalf("is clean: %v", err)
	}
	if ok {
		t.Fatalf("expected dirty worktree to report false")
	}
}
