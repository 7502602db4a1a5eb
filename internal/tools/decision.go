package tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/storage"
	"github.com/aidis-io/aidis/internal/validate"
	"github.com/aidis-io/aidis/pkg/models"
)

func (s *Set) decisionRecord(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}

	decision := &models.Decision{
		ProjectID:        projectID,
		SessionID:        req.Session.ID,
		Title:            validate.Str(req.Args, "title"),
		Description:      validate.Str(req.Args, "description"),
		ProblemStatement: validate.Str(req.Args, "problemStatement"),
		Rationale:        validate.Str(req.Args, "rationale"),
		Alternatives:     validate.StrSlice(req.Args, "alternativesConsidered"),
		ImpactLevel:      models.ImpactLevel(validate.Str(req.Args, "impactLevel")),
		Type:             validate.Str(req.Args, "decisionType"),
		Status:           models.DecisionActive,
	}
	if err := s.stores.Decisions.Create(ctx, decision); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "decision recorded",
		"decision_id", decision.ID,
		"project_id", projectID,
		"impact", string(decision.ImpactLevel),
	)
	return decision, nil
}

func (s *Set) decisionSearch(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}
	filter := storage.DecisionFilter{
		Query:       validate.Str(req.Args, "query"),
		ImpactLevel: models.ImpactLevel(validate.Str(req.Args, "impactLevel")),
		Status:      models.DecisionStatus(validate.Str(req.Args, "status")),
		Type:        validate.Str(req.Args, "decisionType"),
		Limit:       int(validate.Int(req.Args, "limit")),
	}
	decisions, err := s.stores.Decisions.Search(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	return map[string]any{"decisions": decisions, "total": len(decisions)}, nil
}

func (s *Set) decisionUpdate(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}
	id := validate.Str(req.Args, "id")

	var update storage.DecisionUpdate
	if validate.Has(req.Args, "status") {
		status := models.DecisionStatus(validate.Str(req.Args, "status"))
		update.Status = &status
		if status == models.DecisionSuperseded {
			superseder := validate.Str(req.Args, "supersededBy")
			if superseder == "" {
				return nil, &validate.Error{Field: "supersededBy", Reason: "missing"}
			}
			if _, err := s.stores.Decisions.Get(ctx, projectID, superseder); err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					return nil, fmt.Errorf("superseding decision %s: %w", superseder, storage.ErrNotFound)
				}
				return nil, err
			}
			update.SupersededBy = &superseder
		}
	}
	if validate.Has(req.Args, "outcome") {
		outcome := validate.Str(req.Args, "outcome")
		update.Outcome = &outcome
	}
	if validate.Has(req.Args, "lessons") {
		lessons := validate.Str(req.Args, "lessons")
		update.Lessons = &lessons
	}

	if err := s.stores.Decisions.Update(ctx, projectID, id, update); err != nil {
		return nil, err
	}
	decision, err := s.stores.Decisions.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	return decision, nil
}

func (s *Set) decisionStats(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}
	stats, err := s.stores.Decisions.Stats(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
