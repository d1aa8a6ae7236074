package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/madhatter5501/workloop/internal/model"
)

// AddEvent appends one row to the audit log. Data is serialized as JSON,
// matching the teacher's practice of storing structured extras as a text
// blob column rather than a normalized side table.
func (s *Store) AddEvent(ctx context.Context, e model.TaskEvent) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("marshal event data %s: %w", e.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO task_events (id, task_id, project_id, event_type, timestamp, actor, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.TaskID, e.ProjectID, string(e.EventType), toMillis(e.Timestamp), e.Actor, string(data))
	if err != nil {
		return fmt.Errorf("add event %s: %w", e.ID, err)
	}
	return nil
}

// ListEventsByTask returns a task's audit trail, oldest first.
func (s *Store) ListEventsByTask(ctx context.Context, taskID string) ([]model.TaskEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, project_id, event_type, timestamp, actor, data
		FROM task_events WHERE task_id = ? ORDER BY timestamp`, taskID)
	if err != nil {
		return nil, fmt.Errorf("list events for %s: %w", taskID, err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]model.TaskEvent, error) {
	var out []model.TaskEvent
	for rows.Next() {
		var e model.TaskEvent
		var eventType string
		var timestampMs int64
		var data string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.ProjectID, &eventType, &timestampMs, &e.Actor, &data); err != nil {
			return nil, err
		}
		e.EventType = model.TaskEventType(eventType)
		e.Timestamp = fromMillis(timestampMs)
		if data != "" && data != "null" {
			if err := json.Unmarshal([]byte(data), &e.Data); err != nil {
				return nil, fmt.Errorf("unmarshal event data for %s: %w", e.ID, err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
