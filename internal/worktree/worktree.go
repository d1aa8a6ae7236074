// Package worktree manages per-task git worktrees used to isolate an
// agent's edits (glossary: Worktree). Per the spec's explicit Non-goal
// ("managing the git worktree contents beyond create/remove"), this package
// only creates, lists, and removes worktrees -- it has no opinion about what
// an agent does inside one.
package worktree

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/madhatter5501/workloop/internal/process"
)

const (
	defaultTimeout = 10 * time.Second
	removeTimeout  = 30 * time.Second
)

// Manager wraps the git CLI through a timeout-bounded process.Runner,
// grounded on git/worktree.go but narrowed to create/remove/list and
// generalized to take an injected runner instead of calling exec.Command
// inline.
type Manager struct {
	runner   process.Interface
	repoRoot string
}

// NewManager constructs a Manager rooted at repoRoot.
func NewManager(runner process.Interface, repoRoot string) *Manager {
	return &Manager{runner: runner, repoRoot: repoRoot}
}

// Path returns the worktree directory for a task under a project's
// "<local_path>-worktrees/fix/<prefix>" convention (§4.3.3).
func Path(worktreesRoot, branch string) string {
	return filepath.Join(worktreesRoot, branch)
}

// Create adds a new worktree at path on a new branch checked out from base.
func (m *Manager) Create(ctx context.Context, path, branch, base string) error {
	if _, err := m.runner.Run(ctx, m.repoRoot, defaultTimeout,
		"git", "worktree", "add", "-b", branch, path, base); err != nil {
		return fmt.Errorf("create worktree %s: %w", path, err)
	}
	return nil
}

// Remove deletes a worktree directory. force passes --force, needed when the
// directory still has uncommitted changes the caller has already decided to
// discard (the cleanup phase never does this -- it only removes clean trees).
func (m *Manager) Remove(ctx context.Context, path string, force bool) error {
	args := []string{"worktree", "remove"}
	if force {
		args = append(args, "--force")
	}
	args = append(args, path)

	if _, err := m.runner.Run(ctx, m.repoRoot, removeTimeout, "git", args...); err != nil {
		return fmt.Errorf("remove worktree %s: %w", path, err)
	}
	return nil
}

// List returns the paths of all worktrees currently registered against the
// repo, parsed from `git worktree list --porcelain`.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	out, err := m.runner.Run(ctx, m.repoRoot, defaultTimeout, "git", "worktree", "list", "--porcelain")
	if err != nil {
		return nil, fmt.Errorf("list worktrees: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(out, "\n") {
		if p, ok := strings.CutPrefix(line, "worktree "); ok {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

// IsClean reports whether a worktree has no uncommitted changes, used by the
// orphan sweep (§4.3.3) to decide whether a done task's worktree is safe to
// remove.
func (m *Manager) IsClean(ctx context.Context, path string) (bool, error) {
	out, err := m.runner.Run(ctx, path, defaultTimeout, "git", "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("status %s: %w", path, err)
	}
	return out == "", nil
}
