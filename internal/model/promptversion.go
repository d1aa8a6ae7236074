package model

import "time"

// PromptVersion is a role-level "soul template" kept in the store and
// combined with per-task instructions at spawn time (§4.8, glossary).
// (role, model, version) is unique; active is unique per (role, model).
type PromptVersion struct {
	ID        string
	Role      Role
	Model     string
	Version   int
	Content   string
	Active    bool
	CreatedAt time.Time
}

// Scope returns the (role, model) key PromptVersion.Active is unique within.
func (p PromptVersion) Scope() (Role, string) {
	return p.Role, p.Model
}
