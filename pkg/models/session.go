package models

import (
	"time"
)

// Session is a bounded interval of activity attributed to one agent.
// An active session has a nil EndedAt.
type Session struct {
	ID          string     `json:"id"`
	DisplayID   string     `json:"display_id"`
	ProjectID   string     `json:"project_id,omitempty"`
	AgentType   string     `json:"agent_type"`
	Title       string     `json:"title,omitempty"`
	Description string     `json:"description,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`

	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`

	ContextsCreated int `json:"contexts_created"`
	TasksCreated    int `json:"tasks_created"`
	TasksUpdated    int `json:"tasks_updated"`
	TasksCompleted  int `json:"tasks_completed"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// Active reports whether the session has not ended.
func (s *Session) Active() bool {
	return s != nil && s.EndedAt == nil
}

// SessionCounters holds activity deltas accumulated in memory and flushed
// to the session row. All fields are non-negative.
type SessionCounters struct {
	InputTokens     int64 `json:"input_tokens"`
	OutputTokens    int64 `json:"output_tokens"`
	ContextsCreated int   `json:"contexts_created"`
	TasksCreated    int   `json:"tasks_created"`
	TasksUpdated    int   `json:"tasks_updated"`
	TasksCompleted  int   `json:"tasks_completed"`
}

// Zero reports whether every counter is zero.
func (c SessionCounters) Zero() bool {
	return c == SessionCounters{}
}

// Add accumulates other into c.
func (c *SessionCounters) Add(other SessionCounters) {
	c.InputTokens += other.InputTokens
	c.OutputTokens += other.OutputTokens
	c.ContextsCreated += other.ContextsCreated
	c.TasksCreated += other.TasksCreated
	c.TasksUpdated += other.TasksUpdated
	c.TasksCompleted += other.TasksCompleted
}
