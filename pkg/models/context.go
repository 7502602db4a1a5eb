package models

import (
	"time"
)

// ContextType categorizes a stored context entry.
type ContextType string

const (
	ContextCode        ContextType = "code"
	ContextDecision    ContextType = "decision"
	ContextError       ContextType = "error"
	ContextDiscussion  ContextType = "discussion"
	ContextPlanning    ContextType = "planning"
	ContextCompletion  ContextType = "completion"
	ContextMilestone   ContextType = "milestone"
	ContextReflections ContextType = "reflections"
	ContextHandoff     ContextType = "handoff"
)

// ContextTypes lists every valid context type in declaration order.
var ContextTypes = []ContextType{
	ContextCode,
	ContextDecision,
	ContextError,
	ContextDiscussion,
	ContextPlanning,
	ContextCompletion,
	ContextMilestone,
	ContextReflections,
	ContextHandoff,
}

// Valid reports whether t is a known context type.
func (t ContextType) Valid() bool {
	for _, known := range ContextTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ContextEntry is one unit of recorded memory. Entries are append-only:
// the server inserts them and never updates them.
type ContextEntry struct {
	ID        string      `json:"id"`
	ProjectID string      `json:"project_id"`
	SessionID string      `json:"session_id,omitempty"`
	Type      ContextType `json:"context_type"`
	Content   string      `json:"content"`
	Tags      []string    `json:"tags,omitempty"`
	Embedding []float32   `json:"-"` // Not serialized to JSON
	CreatedAt time.Time   `json:"created_at"`
}

// ContextSearchResult pairs an entry with its similarity score in [0,1].
type ContextSearchResult struct {
	Entry      *ContextEntry `json:"entry"`
	Similarity float64       `json:"similarity"`
}

// ContextStats summarizes a project's stored contexts.
type ContextStats struct {
	Total  int            `json:"total"`
	ByType map[string]int `json:"by_type"`
}
