// Package storage persists AIDIS entities in PostgreSQL with pgvector.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/aidis-io/aidis/pkg/models"
)

var (
	// ErrNotFound reports that the addressed row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports that a write would violate an invariant,
	// such as a duplicate project name.
	ErrConflict = errors.New("conflict")
)

// ProjectStore persists projects and the primary-project flag.
type ProjectStore interface {
	Create(ctx context.Context, project *models.Project) error
	Get(ctx context.Context, id string) (*models.Project, error)
	GetByName(ctx context.Context, name string) (*models.Project, error)
	// Find resolves a reference that may be either a project id or a name.
	Find(ctx context.Context, ref string) (*models.Project, error)
	List(ctx context.Context) ([]*models.Project, error)
	// GetPrimary returns the project flagged is_primary, or ErrNotFound.
	GetPrimary(ctx context.Context) (*models.Project, error)
	// SetPrimary flags one project primary and clears any previous flag
	// in the same transaction.
	SetPrimary(ctx context.Context, id string) error
	// First returns one project from an unordered scan, or ErrNotFound.
	First(ctx context.Context) (*models.Project, error)
}

// SessionStore persists session rows and their activity counters.
type SessionStore interface {
	Create(ctx context.Context, session *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	SetProject(ctx context.Context, id, projectID string) error
	// UpdateInfo sets title and description, keeping existing values
	// where the argument is empty.
	UpdateInfo(ctx context.Context, id, title, description string) error
	// AddCounters increments the persisted counters by the given deltas.
	AddCounters(ctx context.Context, id string, c models.SessionCounters) error
	End(ctx context.Context, id string, endedAt time.Time) error
}

// ContextFilter narrows a context search.
type ContextFilter struct {
	Type models.ContextType
	Tags []string
}

// ContextStore persists append-only context entries with embeddings.
type ContextStore interface {
	Insert(ctx context.Context, entry *models.ContextEntry) error
	Search(ctx context.Context, projectID string, queryEmbedding []float32, limit int, filter ContextFilter) ([]*models.ContextSearchResult, error)
	Recent(ctx context.Context, projectID string, limit int) ([]*models.ContextEntry, error)
	Stats(ctx context.Context, projectID string) (*models.ContextStats, error)
}

// DecisionFilter narrows a decision search. Zero values mean no filter.
type DecisionFilter struct {
	Query       string
	ImpactLevel models.ImpactLevel
	Status      models.DecisionStatus
	Type        string
	Limit       int
}

// DecisionUpdate carries the mutable decision fields. Nil pointers leave
// the column unchanged.
type DecisionUpdate struct {
	Status       *models.DecisionStatus
	Outcome      *string
	Lessons      *string
	SupersededBy *string
}

// DecisionStore persists technical decisions.
type DecisionStore interface {
	Create(ctx context.Context, decision *models.Decision) error
	Get(ctx context.Context, projectID, id string) (*models.Decision, error)
	Search(ctx context.Context, projectID string, filter DecisionFilter) ([]*models.Decision, error)
	Update(ctx context.Context, projectID, id string, update DecisionUpdate) error
	Stats(ctx context.Context, projectID string) (*models.DecisionStats, error)
}

// TaskFilter narrows a task listing. Zero values mean no filter.
type TaskFilter struct {
	Status     models.TaskStatus
	AssignedTo string
	Limit      int
}

// TaskUpdate carries the mutable task fields. Nil pointers leave the
// column unchanged.
type TaskUpdate struct {
	Status       *models.TaskStatus
	Priority     *models.TaskPriority
	AssignedTo   *string
	Dependencies *[]string
}

// TaskStore persists coordination tasks and their dependency edges.
type TaskStore interface {
	Create(ctx context.Context, task *models.Task) error
	Get(ctx context.Context, projectID, id string) (*models.Task, error)
	List(ctx context.Context, projectID string, filter TaskFilter) ([]*models.Task, error)
	Update(ctx context.Context, projectID, id string, update TaskUpdate) error
	// Edges returns every task's dependency list for cycle checking.
	Edges(ctx context.Context, projectID string) (map[string][]string, error)
	// Statuses returns the status of each listed task id.
	Statuses(ctx context.Context, projectID string, ids []string) (map[string]models.TaskStatus, error)
}

// StoreSet groups storage dependencies.
type StoreSet struct {
	Projects  ProjectStore
	Sessions  SessionStore
	Contexts  ContextStore
	Decisions DecisionStore
	Tasks     TaskStore

	pinger func(context.Context) error
	closer func() error
}

// Ping verifies database connectivity.
func (s StoreSet) Ping(ctx context.Context) error {
	if s.pinger == nil {
		return nil
	}
	return s.pinger(ctx)
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
