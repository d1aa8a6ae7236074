package model

import "time"

// Comment is a message attached to a task, from the coordinator, an agent,
// or a human.
type Comment struct {
	ID          string
	TaskID      string
	Author      string
	AuthorType  CommentAuthorType
	Content     string
	Type        CommentType
	RespondedAt *time.Time
	CreatedAt   time.Time
}

// Pending reports whether a request_input comment is still awaiting a reply.
func (c Comment) Pending() bool {
	return c.Type == CommentRequestInput && c.RespondedAt == nil
}
