package model

import "time"

// TaskDependency is a directed edge task_id depends on depends_on_id; the
// dependent task cannot leave backlog (or be claimed out of ready) until
// depends_on_id reaches done (§3 invariants, §8 property 3/4).
type TaskDependency struct {
	TaskID      string
	DependsOnID string
	CreatedAt   time.Time
}
