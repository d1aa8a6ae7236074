package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/madhatter5501/workloop/internal/model"
)

// AddNotification inserts a coordinator-facing notification.
func (s *Store) AddNotification(ctx context.Context, n model.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notifications (id, task_id, project_id, type, severity, title, message, agent, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.TaskID, n.ProjectID, string(n.Type), string(n.Severity), n.Title, n.Message, n.Agent,
		boolToInt(n.Read), toMillis(n.CreatedAt))
	if err != nil {
		return fmt.Errorf("add notification %s: %w", n.ID, err)
	}
	return nil
}

// ListUnreadEscalations returns unread escalation notifications for a
// project, feeding the gate aggregator's unreadEscalations count (§4.9).
func (s *Store) ListUnreadEscalations(ctx context.Context, projectID string) ([]model.Notification, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, project_id, type, severity, title, message, agent, read, created_at
		FROM notifications
		WHERE project_id = ? AND type = ? AND read = 0
		ORDER BY created_at DESC`, projectID, string(model.NotificationEscalation))
	if err != nil {
		return nil, fmt.Errorf("list unread escalations for project %s: %w", projectID, err)
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// MarkNotificationRead flips a notification's read flag.
func (s *Store) MarkNotificationRead(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notifications SET read = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark notification read %s: %w", id, err)
	}
	return nil
}

func scanNotifications(rows *sql.Rows) ([]model.Notification, error) {
	var out []model.Notification
	for rows.Next() {
		var n model.Notification
		var typ, severity string
		var read int
		var createdMs int64
		if err := rows.Scan(&n.ID, &n.TaskID, &n.ProjectID, &typ, &severity, &n.Title, &n.Message, &n.Agent, &read, &createdMs); err != nil {
			return nil, err
		}
		n.Type = model.NotificationType(typ)
		n.Severity = model.NotificationSeverity(severity)
		n.Read = read != 0
		n.CreatedAt = fromMillis(createdMs)
		out = append(out, n)
	}
	return out, rows.Err()
}
