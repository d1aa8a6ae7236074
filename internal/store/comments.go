package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/madhatter5501/workloop/internal/apperr"
	"github.com/madhatter5501/workloop/internal/model"
)

// AddComment inserts a new comment.
func (s *Store) AddComment(ctx context.Context, c model.Comment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, task_id, author, author_type, content, type, responded_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.TaskID, c.Author, string(c.AuthorType), c.Content, string(c.Type),
		nullableMillis(c.RespondedAt), toMillis(c.CreatedAt))
	if err != nil {
		return fmt.Errorf("add comment %s: %w", c.ID, err)
	}
	return nil
}

// ListCommentsByTask returns all comments on a task, oldest first, the order
// the prompt builder and the cycle phases render a task's history in.
func (s *Store) ListCommentsByTask(ctx context.Context, taskID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+` WHERE task_id = ? ORDER BY created_at`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments for %s: %w", taskID, err)
	}
	defer rows.Close()
	return scanComments(rows)
}

// ListPendingRequestInput returns every unanswered request_input comment
// across a project's tasks, feeding the gate aggregator's pendingInputs
// count (§4.9) and the cleanup phase's PM-ping logic (§4.3.5).
func (s *Store) ListPendingRequestInput(ctx context.Context, projectID string) ([]model.Comment, error) {
	rows, err := s.db.QueryContext(ctx, commentSelect+`
		JOIN tasks ON tasks.id = comments.task_id
		WHERE tasks.project_id = ? AND comments.type = ? AND comments.responded_at IS NULL
		ORDER BY comments.created_at`, projectID, string(model.CommentRequestInput))
	if err != nil {
		return nil, fmt.Errorf("list pending request_input for project %s: %w", projectID, err)
	}
	defer rows.Close()
	return scanComments(rows)
}

// RespondComment marks a request_input comment answered. Returns
// apperr.ErrAlreadyResponded if it already carries a response, matching the
// idempotence the spec requires of Signal.Respond (§8).
func (s *Store) RespondComment(ctx context.Context, commentID string, respondedAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var existing sql.NullInt64
		err := tx.QueryRowContext(ctx, `SELECT responded_at FROM comments WHERE id = ?`, commentID).Scan(&existing)
		if err == sql.ErrNoRows {
			return apperr.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("respond comment %s: %w", commentID, err)
		}
		if existing.Valid {
			return apperr.ErrAlreadyResponded
		}

		_, err = tx.ExecContext(ctx, `UPDATE comments SET responded_at = ? WHERE id = ?`, toMillis(respondedAt), commentID)
		if err != nil {
			return fmt.Errorf("respond comment %s: %w", commentID, err)
		}
		return nil
	})
}

const commentSelect = `SELECT comments.id, comments.task_id, comments.author, comments.author_type,
	comments.content, comments.type, comments.responded_at, comments.created_at
	FROM comments`

func scanComments(rows *sql.Rows) ([]model.Comment, error) {
	var out []model.Comment
	for rows.Next() {
		var c model.Comment
		var authorType, commentType string
		var respondedMs sql.NullInt64
		var createdMs int64
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Author, &authorType, &c.Content, &commentType, &respondedMs, &createdMs); err != nil {
			return nil, err
		}
		c.AuthorType = model.CommentAuthorType(authorType)
		c.Type = model.CommentType(commentType)
		c.RespondedAt = scanNullableTime(respondedMs)
		c.CreatedAt = fromMillis(createdMs)
		out = append(out, c)
	}
	return out, rows.Err()
}
