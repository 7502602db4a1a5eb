// Package tools implements the domain tool handlers: projects,
// sessions, contexts, decisions, and tasks. Each handler receives
// schema-validated arguments from the dispatcher and talks to storage
// through the store interfaces.
package tools

import (
	"context"
	"fmt"
	"time"

	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/embeddings"
	"github.com/aidis-io/aidis/internal/observability"
	"github.com/aidis-io/aidis/internal/retry"
	"github.com/aidis-io/aidis/internal/session"
	"github.com/aidis-io/aidis/internal/storage"
	"github.com/aidis-io/aidis/internal/validate"
)

// Deps carries everything the handlers need.
type Deps struct {
	Stores       storage.StoreSet
	Embedder     embeddings.Provider
	EmbeddingDim int
	Sessions     *session.Orchestrator
	Logger       *observability.Logger
}

// Set is the full domain handler set.
type Set struct {
	stores   storage.StoreSet
	embedder embeddings.Provider
	dim      int
	sessions *session.Orchestrator
	logger   *observability.Logger
}

// New builds the handler set.
func New(deps Deps) *Set {
	return &Set{
		stores:   deps.Stores,
		embedder: deps.Embedder,
		dim:      deps.EmbeddingDim,
		sessions: deps.Sessions,
		logger:   deps.Logger,
	}
}

// Register attaches every domain handler to the dispatcher.
func (s *Set) Register(d *dispatch.Dispatcher) {
	d.Register("project_list", s.projectList)
	d.Register("project_create", s.projectCreate)
	d.Register("project_info", s.projectInfo)
	d.Register("project_switch", s.projectSwitch)
	d.Register("project_set_primary", s.projectSetPrimary)

	d.Register("session_status", s.sessionStatus)
	d.Register("session_new", s.sessionNew)
	d.Register("session_update", s.sessionUpdate)
	d.Register("session_end", s.sessionEnd)

	d.Register("context_store", s.contextStore)
	d.Register("context_search", s.contextSearch)
	d.Register("context_get_recent", s.contextGetRecent)
	d.Register("context_stats", s.contextStats)

	d.Register("decision_record", s.decisionRecord)
	d.Register("decision_search", s.decisionSearch)
	d.Register("decision_update", s.decisionUpdate)
	d.Register("decision_stats", s.decisionStats)

	d.Register("task_create", s.taskCreate)
	d.Register("task_list", s.taskList)
	d.Register("task_update", s.taskUpdate)
	d.Register("task_details", s.taskDetails)
}

// projectID resolves the project a request targets: an explicit
// projectId argument wins, otherwise the session's current project.
func (s *Set) projectID(ctx context.Context, req *dispatch.Request) (string, error) {
	if ref := validate.Str(req.Args, "projectId"); ref != "" {
		p, err := s.stores.Projects.Find(ctx, ref)
		if err != nil {
			return "", err
		}
		return p.ID, nil
	}
	if req.Session.ProjectID == "" {
		return "", session.ErrNoProject
	}
	return req.Session.ProjectID, nil
}

// embed calls the provider with one bounded retry and checks the
// configured dimensionality. Provider failures surface as
// ErrUnavailable so callers can distinguish them from server bugs.
func (s *Set) embed(ctx context.Context, text string) ([]float32, error) {
	if s.embedder == nil {
		return nil, embeddings.ErrUnavailable
	}
	var vec []float32
	err := retry.Do(ctx, retry.Exponential(2, 250*time.Millisecond, time.Second), func() error {
		var err error
		vec, err = s.embedder.Embed(ctx, text)
		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %v", embeddings.ErrUnavailable, err)
	}
	if err := embeddings.CheckDimension(vec, s.dim); err != nil {
		return nil, err
	}
	return vec, nil
}
