package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
)

// CreateProject inserts a new project row.
func (s *Store) CreateProject(ctx context.Context, p model.Project) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO projects (id, slug, name, color, repo_url, local_path, github_repo,
			chat_layout, work_loop_enabled, work_loop_max_agents, work_loop_schedule,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.Slug, p.Name, p.Color, p.RepoURL, p.LocalPath, p.GithubRepo,
		string(p.ChatLayout), boolToInt(p.WorkLoopEnabled), nullableInt(p.WorkLoopMaxAgents), p.WorkLoopSchedule,
		toMillis(p.CreatedAt), toMillis(p.UpdatedAt))
	if err != nil {
		return fmt.Errorf("create project %s: %w", p.Slug, err)
	}
	return nil
}

// GetProject fetches one project by id.
func (s *Store) GetProject(ctx context.Context, id string) (model.Project, error) {
	row := s.db.QueryRowContext(ctx, projectSelect+` WHERE id = ?`, id)
	return scanProject(row)
}

// GetProjectBySlug fetches one project by its unique slug.
func (s *Store) GetProjectBySlug(ctx context.Context, slug string) (model.Project, error) {
	row := s.db.QueryRowContext(ctx, projectSelect+` WHERE slug = ?`, slug)
	return scanProject(row)
}

// ListEnabledProjects returns every project with work_loop_enabled=1, the
// set the top-level scheduler drives (§4.1, §6.4).
func (s *Store) ListEnabledProjects(ctx context.Context) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx, projectSelect+` WHERE work_loop_enabled = 1 ORDER BY slug`)
	if err != nil {
		return nil, fmt.Errorf("list enabled projects: %w", err)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteProject removes a project and everything that hangs off it (tasks,
// dependencies, comments, signals, events), mirroring the teacher's
// cascading board-delete behavior.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		taskRows, err := tx.QueryContext(ctx, `SELECT id FROM tasks WHERE project_id = ?`, id)
		if err != nil {
			return fmt.Errorf("list project tasks: %w", err)
		}
		var taskIDs []string
		for taskRows.Next() {
			var tid string
			if err := taskRows.Scan(&tid); err != nil {
				taskRows.Close()
				return err
			}
			taskIDs = append(taskIDs, tid)
		}
		taskRows.Close()
		if err := taskRows.Err(); err != nil {
			return err
		}

		for _, tid := range taskIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM task_dependencies WHERE task_id = ? OR depends_on_id = ?`, tid, tid); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE task_id = ?`, tid); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM signals WHERE task_id = ?`, tid); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM task_events WHERE task_id = ?`, tid); err != nil {
				return err
			}
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM tasks WHERE project_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM notifications WHERE project_id = ?`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id); err != nil {
			return err
		}
		return nil
	})
}

const projectSelect = `SELECT id, slug, name, color, repo_url, local_path, github_repo,
	chat_layout, work_loop_enabled, work_loop_max_agents, work_loop_schedule, created_at, updated_at
	FROM projects`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (model.Project, error) {
	var p model.Project
	var chatLayout string
	var enabled int
	var maxAgents sql.NullInt64
	var createdMs, updatedMs int64

	err := row.Scan(&p.ID, &p.Slug, &p.Name, &p.Color, &p.RepoURL, &p.LocalPath, &p.GithubRepo,
		&chatLayout, &enabled, &maxAgents, &p.WorkLoopSchedule, &createdMs, &updatedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Project{}, apperr.ErrNotFound
	}
	if err != nil {
		return model.Project{}, fmt.Errorf("scan project: %w", err)
	}

	p.ChatLayout = model.ChatLayout(chatLayout)
	p.WorkLoopEnabled = enabled != 0
	p.CreatedAt = fromMillis(createdMs)
	p.UpdatedAt = fromMillis(updatedMs)
	if maxAgents.Valid {
		v := int(maxAgents.Int64)
		p.WorkLoopMaxAgents = &v
	}
	return p, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
