package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
)

// CreateTask inserts a new task, defaulting to backlog if Status is unset.
func (s *Store) CreateTask(ctx context.Context, t model.Task) error {
	if t.Status == "" {
		t.Status = model.StatusBacklog
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, priority, role, assignee,
			requires_human_review, tags, position, session_id, agent_session_key, agent_model,
			agent_started_at, agent_last_active_at, agent_retry_count, branch, pr_number,
			escalated, escalated_at, triage_sent_at, triage_acked_at, resolution,
			created_at, updated_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProjectID, t.Title, t.Description, string(t.Status), string(t.Priority), string(t.Role), t.Assignee,
		boolToInt(t.RequiresHumanReview), joinTags(t.Tags), t.Position, t.SessionID, t.AgentSessionKey, t.AgentModel,
		nullableMillis(t.AgentStartedAt), nullableMillis(t.AgentLastActiveAt), t.AgentRetryCount, t.Branch, nullableInt(t.PRNumber),
		boolToInt(t.Escalated), nullableMillis(t.EscalatedAt), nullableMillis(t.TriageSentAt), nullableMillis(t.TriageAckedAt), string(t.Resolution),
		toMillis(t.CreatedAt), toMillis(t.UpdatedAt), nullableMillis(t.CompletedAt))
	if err != nil {
		return fmt.Errorf("create task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask fetches a single task by id.
func (s *Store) GetTask(ctx context.Context, id string) (model.Task, error) {
	row := s.db.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasksByProjectStatus returns every task in a project with the given
// status, used by the work phase (ready), review phase (in_review), and
// gate aggregator (all of the above plus blocked).
func (s *Store) ListTasksByProjectStatus(ctx context.Context, projectID string, status model.TaskStatus) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, taskSelect+` WHERE project_id = ? AND status = ? ORDER BY position`, projectID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// ListTasksByAssignee returns a project's tasks currently held by an agent
// session key prefix, used by the cleanup phase's ghost sweep (§4.3.1).
func (s *Store) ListTasksByAssignee(ctx context.Context, projectID string, statuses []model.TaskStatus) ([]model.Task, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, 0, len(statuses)+1)
	args = append(args, projectID)
	for i, st := range statuses {
		placeholders[i] = "?"
		args = append(args, string(st))
	}
	q := taskSelect + fmt.Sprintf(` WHERE project_id = ? AND status IN (%s) AND agent_session_key != '' ORDER BY position`, strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks by assignee: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// UpdateTask persists every mutable field of t in one statement, used by the
// phases for non-claim transitions (review verdicts, triage actions, agent
// bookkeeping) where no race window needs the extra guard ClaimTask has.
func (s *Store) UpdateTask(ctx context.Context, t model.Task) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET title=?, description=?, status=?, priority=?, role=?, assignee=?,
			requires_human_review=?, tags=?, position=?, session_id=?, agent_session_key=?, agent_model=?,
			agent_started_at=?, agent_last_active_at=?, agent_retry_count=?, branch=?, pr_number=?,
			escalated=?, escalated_at=?, triage_sent_at=?, triage_acked_at=?, resolution=?,
			updated_at=?, completed_at=?
		WHERE id=?`,
		t.Title, t.Description, string(t.Status), string(t.Priority), string(t.Role), t.Assignee,
		boolToInt(t.RequiresHumanReview), joinTags(t.Tags), t.Position, t.SessionID, t.AgentSessionKey, t.AgentModel,
		nullableMillis(t.AgentStartedAt), nullableMillis(t.AgentLastActiveAt), t.AgentRetryCount, t.Branch, nullableInt(t.PRNumber),
		boolToInt(t.Escalated), nullableMillis(t.EscalatedAt), nullableMillis(t.TriageSentAt), nullableMillis(t.TriageAckedAt), string(t.Resolution),
		toMillis(t.UpdatedAt), nullableMillis(t.CompletedAt), t.ID)
	if err != nil {
		return fmt.Errorf("update task %s: %w", t.ID, err)
	}
	return nil
}

// ClaimTask is the one transition in the whole system that must be atomic
// across concurrent cycles (§5): it re-reads the task's status and its
// dependency completeness inside the same transaction that performs the
// ready -> in_progress write, so a second claimant sees the row already
// moved and loses the race cleanly instead of double-assigning an agent.
// Grounded on internal/db/store.go's UpdateTicketStatus tx.Begin/Commit
// claim, extended with the dependency check state's kanban/state.go never
// had to make atomic (it ran single-threaded against a JSON file).
func (s *Store) ClaimTask(ctx context.Context, taskID, sessionKey, agentModel string, startedAt time.Time) (model.Task, error) {
	var claimed model.Task
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, taskSelect+` WHERE id = ?`, taskID)
		t, err := scanTask(row)
		if err != nil {
			return err
		}
		if t.Status != model.StatusReady {
			return apperr.ErrClaimConflict
		}

		incomplete, err := incompleteDependencies(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if len(incomplete) > 0 {
			return apperr.ErrClaimConflict
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE tasks SET status=?, agent_session_key=?, agent_model=?, agent_started_at=?,
				agent_last_active_at=?, updated_at=?
			WHERE id=? AND status=?`,
			string(model.StatusInProgress), sessionKey, agentModel, toMillis(startedAt),
			toMillis(startedAt), toMillis(startedAt), taskID, string(model.StatusReady))
		if err != nil {
			return fmt.Errorf("claim task %s: %w", taskID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			// Lost the race between the read above and this write.
			return apperr.ErrClaimConflict
		}

		t.Status = model.StatusInProgress
		t.AgentSessionKey = sessionKey
		t.AgentModel = agentModel
		t.AgentStartedAt = &startedAt
		t.AgentLastActiveAt = &startedAt
		t.UpdatedAt = startedAt
		claimed = t
		return nil
	})
	if err != nil {
		return model.Task{}, err
	}
	return claimed, nil
}

const taskSelect = `SELECT id, project_id, title, description, status, priority, role, assignee,
	requires_human_review, tags, position, session_id, agent_session_key, agent_model,
	agent_started_at, agent_last_active_at, agent_retry_count, branch, pr_number,
	escalated, escalated_at, triage_sent_at, triage_acked_at, resolution,
	created_at, updated_at, completed_at
	FROM tasks`

func scanTask(row rowScanner) (model.Task, error) {
	var t model.Task
	var status, priority, role, tags, resolution string
	var requiresReview, escalated int
	var prNumber sql.NullInt64
	var agentStartedMs, agentLastActiveMs, escalatedMs, triageSentMs, triageAckedMs, completedMs sql.NullInt64
	var createdMs, updatedMs int64

	err := row.Scan(&t.ID, &t.ProjectID, &t.Title, &t.Description, &status, &priority, &role, &t.Assignee,
		&requiresReview, &tags, &t.Position, &t.SessionID, &t.AgentSessionKey, &t.AgentModel,
		&agentStartedMs, &agentLastActiveMs, &t.AgentRetryCount, &t.Branch, &prNumber,
		&escalated, &escalatedMs, &triageSentMs, &triageAckedMs, &resolution,
		&createdMs, &updatedMs, &completedMs)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Task{}, apperr.ErrNotFound
	}
	if err != nil {
		return model.Task{}, fmt.Errorf("scan task: %w", err)
	}

	t.Status = model.TaskStatus(status)
	t.Priority = model.Priority(priority)
	t.Role = model.Role(role)
	t.Tags = splitTags(tags)
	t.RequiresHumanReview = requiresReview != 0
	t.Escalated = escalated != 0
	t.Resolution = model.Resolution(resolution)
	t.CreatedAt = fromMillis(createdMs)
	t.UpdatedAt = fromMillis(updatedMs)
	t.AgentStartedAt = scanNullableTime(agentStartedMs)
	t.AgentLastActiveAt = scanNullableTime(agentLastActiveMs)
	t.EscalatedAt = scanNullableTime(escalatedMs)
	t.TriageSentAt = scanNullableTime(triageSentMs)
	t.TriageAckedAt = scanNullableTime(triageAckedMs)
	t.CompletedAt = scanNullableTime(completedMs)
	if prNumber.Valid {
		v := int(prNumber.Int64)
		t.PRNumber = &v
	}
	return t, nil
}

func scanTasks(rows *sql.Rows) ([]model.Task, error) {
	var out []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func joinTags(tags []string) string {
	return strings.Join(tags, ",")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}
