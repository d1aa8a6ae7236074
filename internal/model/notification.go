package model

import "time"

// Notification surfaces an event to the human coordinator.
type Notification struct {
	ID        string
	TaskID    string
	ProjectID string
	Type      NotificationType
	Severity  NotificationSeverity
	Title     string
	Message   string
	Agent     string
	Read      bool
	CreatedAt time.Time
}
