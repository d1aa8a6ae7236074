package cycle

import (
	"path/filepath"

	"github.com/google/uuid"

	"github.com/madhatter5501/workloop/internal/model"
)

// eventID generates a fresh id for a task_events row.
func eventID() string {
	return uuid.NewString()
}

// worktreePathFor derives a task's worktree directory under its project's
// worktrees root (§4.3.3, §4.4.2): "<local_path>-worktrees/fix/<prefix>".
func worktreePathFor(project model.Project, task model.Task) string {
	root := project.WorktreesRoot()
	if root == "" {
		return ""
	}
	return filepath.Join(root, "fix", task.WorktreePrefix())
}
