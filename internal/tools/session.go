package tools

import (
	"context"

	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/validate"
	"github.com/aidis-io/aidis/pkg/models"
)

func (s *Set) sessionStatus(ctx context.Context, req *dispatch.Request) (any, error) {
	sess, err := s.stores.Sessions.Get(ctx, req.Session.ID)
	if err != nil {
		return nil, err
	}

	// Merge counters not yet flushed so the caller sees live totals.
	pending := req.Session.Pending
	if state, ok := s.sessions.Snapshot(req.SessionKey); ok {
		pending = state.Pending
	}
	sess.InputTokens += pending.InputTokens
	sess.OutputTokens += pending.OutputTokens
	sess.TotalTokens += pending.InputTokens + pending.OutputTokens
	sess.ContextsCreated += pending.ContextsCreated
	sess.TasksCreated += pending.TasksCreated
	sess.TasksUpdated += pending.TasksUpdated
	sess.TasksCompleted += pending.TasksCompleted

	return map[string]any{
		"session":     sess,
		"session_key": req.SessionKey,
		"project_id":  req.Session.ProjectID,
	}, nil
}

func (s *Set) sessionNew(ctx context.Context, req *dispatch.Request) (any, error) {
	agentType := validate.Str(req.Args, "agentType")
	if agentType == "" {
		agentType = req.Session.AgentType
	}
	state, err := s.sessions.StartNew(ctx, req.SessionKey, validate.Str(req.Args, "title"), agentType)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id": state.ID,
		"display_id": state.DisplayID,
		"project_id": state.ProjectID,
		"started_at": state.StartedAt,
	}, nil
}

func (s *Set) sessionUpdate(ctx context.Context, req *dispatch.Request) (any, error) {
	title := validate.Str(req.Args, "title")
	description := validate.Str(req.Args, "description")
	if title != "" || description != "" {
		if err := s.sessions.UpdateInfo(ctx, req.SessionKey, title, description); err != nil {
			return nil, err
		}
	}

	delta := models.SessionCounters{
		InputTokens:  validate.Int(req.Args, "inputTokens"),
		OutputTokens: validate.Int(req.Args, "outputTokens"),
	}
	if !delta.Zero() {
		s.sessions.Record(req.SessionKey, delta)
	}

	return map[string]any{
		"session_id": req.Session.ID,
		"updated":    true,
	}, nil
}

func (s *Set) sessionEnd(ctx context.Context, req *dispatch.Request) (any, error) {
	if err := s.sessions.End(ctx, req.SessionKey); err != nil {
		return nil, err
	}
	return map[string]any{
		"session_id": req.Session.ID,
		"ended":      true,
	}, nil
}
