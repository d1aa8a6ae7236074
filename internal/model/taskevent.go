package model

import "time"

// TaskEvent is one row of the append-only audit log (§3, §8 invariants are
// largely verified by asserting the right events were recorded).
type TaskEvent struct {
	ID        string
	TaskID    string
	ProjectID string
	EventType TaskEventType
	Timestamp time.Time
	Actor     string
	Data      map[string]any
}
