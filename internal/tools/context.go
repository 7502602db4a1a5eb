package tools

import (
	"context"

	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/storage"
	"github.com/aidis-io/aidis/internal/validate"
	"github.com/aidis-io/aidis/pkg/models"
)

func (s *Set) contextStore(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}

	content := validate.Str(req.Args, "content")
	// Embedding precedes the insert, so a provider failure can never
	// leave a partial row.
	vec, err := s.embed(ctx, content)
	if err != nil {
		return nil, err
	}

	entry := &models.ContextEntry{
		ProjectID: projectID,
		SessionID: req.Session.ID,
		Type:      models.ContextType(validate.Str(req.Args, "type")),
		Content:   content,
		Tags:      validate.StrSlice(req.Args, "tags"),
		Embedding: vec,
	}
	if err := s.stores.Contexts.Insert(ctx, entry); err != nil {
		return nil, err
	}

	s.sessions.Record(req.SessionKey, models.SessionCounters{ContextsCreated: 1})
	s.logger.Debug(ctx, "context stored",
		"context_id", entry.ID,
		"project_id", projectID,
		"type", string(entry.Type),
	)
	return map[string]any{
		"id":         entry.ID,
		"project_id": entry.ProjectID,
		"type":       entry.Type,
		"tags":       entry.Tags,
		"created_at": entry.CreatedAt,
	}, nil
}

func (s *Set) contextSearch(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}

	vec, err := s.embed(ctx, validate.Str(req.Args, "query"))
	if err != nil {
		return nil, err
	}

	filter := storage.ContextFilter{
		Type: models.ContextType(validate.Str(req.Args, "type")),
		Tags: validate.StrSlice(req.Args, "tags"),
	}
	results, err := s.stores.Contexts.Search(ctx, projectID, vec, int(validate.Int(req.Args, "limit")), filter)
	if err != nil {
		return nil, err
	}

	views := make([]map[string]any, len(results))
	for i, r := range results {
		views[i] = map[string]any{
			"id":         r.Entry.ID,
			"type":       r.Entry.Type,
			"content":    r.Entry.Content,
			"tags":       r.Entry.Tags,
			"similarity": r.Similarity,
			"created_at": r.Entry.CreatedAt,
		}
	}
	return map[string]any{"results": views, "total": len(views)}, nil
}

func (s *Set) contextGetRecent(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}
	entries, err := s.stores.Contexts.Recent(ctx, projectID, int(validate.Int(req.Args, "limit")))
	if err != nil {
		return nil, err
	}
	return map[string]any{"contexts": entries, "total": len(entries)}, nil
}

func (s *Set) contextStats(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}
	stats, err := s.stores.Contexts.Stats(ctx, projectID)
	if err != nil {
		return nil, err
	}
	return stats, nil
}
