// Package models defines the core data types for AIDIS.
package models

import (
	"time"
)

// Project is a named workspace. Sessions, contexts, decisions, and tasks
// belong to exactly one project.
type Project struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	// Populated by listing queries only.
	ContextCount int `json:"context_count,omitempty"`
	SessionCount int `json:"session_count,omitempty"`
}

// IsPrimary reports whether the project carries the primary flag in its
// metadata. At most one project holds the flag at a time.
func (p *Project) IsPrimary() bool {
	if p == nil || p.Metadata == nil {
		return false
	}
	v, ok := p.Metadata["is_primary"].(bool)
	return ok && v
}
