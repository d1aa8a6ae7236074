package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
)

// AddDependency records that taskID depends on dependsOnID, rejecting the
// edge if it is a self-edge or would close a cycle in the dependency graph
// (§3, §8 property 3). Unlike kanban/state.go's dependenciesMet (a flat "are
// all deps done" scan with no cycle awareness), this walks the graph
// breadth-first from dependsOnID looking for taskID before the edge is ever
// written.
func (s *Store) AddDependency(ctx context.Context, taskID, dependsOnID string, now time.Time) error {
	if taskID == dependsOnID {
		return apperr.ErrDependencyCycle
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		reaches, err := reachableFrom(ctx, tx, dependsOnID, taskID)
		if err != nil {
			return err
		}
		if reaches {
			return apperr.ErrDependencyCycle
		}

		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO task_dependencies (task_id, depends_on_id, created_at)
			VALUES (?, ?, ?)`, taskID, dependsOnID, toMillis(now))
		if err != nil {
			return fmt.Errorf("add dependency %s -> %s: %w", taskID, dependsOnID, err)
		}
		return nil
	})
}

// reachableFrom reports whether target is reachable from start by following
// depends_on edges forward (start depends on X, X depends on Y, ...). If
// taskID depends on dependsOnID and dependsOnID can already reach taskID,
// adding the new edge would close a cycle.
func reachableFrom(ctx context.Context, tx *sql.Tx, start, target string) (bool, error) {
	visited := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == target {
			return true, nil
		}

		rows, err := tx.QueryContext(ctx, `SELECT depends_on_id FROM task_dependencies WHERE task_id = ?`, cur)
		if err != nil {
			return false, fmt.Errorf("walk dependency graph: %w", err)
		}
		var next []string
		for rows.Next() {
			var n string
			if err := rows.Scan(&n); err != nil {
				rows.Close()
				return false, err
			}
			next = append(next, n)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return false, err
		}

		for _, n := range next {
			if !visited[n] {
				visited[n] = true
				queue = append(queue, n)
			}
		}
	}
	return false, nil
}

// ListDependencies returns every edge where taskID is the dependent task.
func (s *Store) ListDependencies(ctx context.Context, taskID string) ([]model.TaskDependency, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, depends_on_id, created_at FROM task_dependencies WHERE task_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list dependencies of %s: %w", taskID, err)
	}
	defer rows.Close()
	return scanDependencies(rows)
}

// ListDependents returns every edge where taskID is the prerequisite, used
// when a task completes to find tasks that may now be unblocked (§4.4/§4.6).
func (s *Store) ListDependents(ctx context.Context, taskID string) ([]model.TaskDependency, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT task_id, depends_on_id, created_at FROM task_dependencies WHERE depends_on_id = ?`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list dependents of %s: %w", taskID, err)
	}
	defer rows.Close()
	return scanDependencies(rows)
}

// IncompleteDependencies returns the ids of taskID's prerequisites that have
// not reached done, used to gate backlog -> ready (§3 invariants).
func (s *Store) IncompleteDependencies(ctx context.Context, taskID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ids, err := incompleteDependencies(ctx, tx, taskID)
	if err != nil {
		return nil, err
	}
	return ids, tx.Commit()
}

func incompleteDependencies(ctx context.Context, tx *sql.Tx, taskID string) ([]string, error) {
	rows, err := tx.QueryContext(ctx, `
		SELECT d.depends_on_id FROM task_dependencies d
		JOIN tasks t ON t.id = d.depends_on_id
		WHERE d.task_id = ? AND t.status != ?`, taskID, string(model.StatusDone))
	if err != nil {
		return nil, fmt.Errorf("incomplete dependencies of %s: %w", taskID, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanDependencies(rows *sql.Rows) ([]model.TaskDependency, error) {
	var out []model.TaskDependency
	for rows.Next() {
		var d model.TaskDependency
		var createdMs int64
		if err := rows.Scan(&d.TaskID, &d.DependsOnID, &createdMs); err != nil {
			return nil, err
		}
		d.CreatedAt = fromMillis(createdMs)
		out = append(out, d)
	}
	return out, rows.Err()
}
