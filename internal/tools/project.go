package tools

import (
	"context"

	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/validate"
	"github.com/aidis-io/aidis/pkg/models"
)

func projectView(p *models.Project) map[string]any {
	out := map[string]any{
		"id":          p.ID,
		"name":        p.Name,
		"description": p.Description,
		"is_primary":  p.IsPrimary(),
		"created_at":  p.CreatedAt,
		"updated_at":  p.UpdatedAt,
	}
	if p.ContextCount > 0 || p.SessionCount > 0 {
		out["context_count"] = p.ContextCount
		out["session_count"] = p.SessionCount
	}
	return out
}

func (s *Set) projectList(ctx context.Context, _ *dispatch.Request) (any, error) {
	projects, err := s.stores.Projects.List(ctx)
	if err != nil {
		return nil, err
	}
	views := make([]map[string]any, len(projects))
	for i, p := range projects {
		views[i] = map[string]any{
			"id":            p.ID,
			"name":          p.Name,
			"description":   p.Description,
			"is_primary":    p.IsPrimary(),
			"context_count": p.ContextCount,
			"session_count": p.SessionCount,
		}
	}
	return map[string]any{"projects": views, "total": len(views)}, nil
}

func (s *Set) projectCreate(ctx context.Context, req *dispatch.Request) (any, error) {
	project := &models.Project{
		Name:        validate.Str(req.Args, "name"),
		Description: validate.Str(req.Args, "description"),
	}
	if err := s.stores.Projects.Create(ctx, project); err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "project created", "project_id", project.ID, "name", project.Name)
	return projectView(project), nil
}

func (s *Set) projectInfo(ctx context.Context, req *dispatch.Request) (any, error) {
	project, err := s.stores.Projects.Find(ctx, validate.Str(req.Args, "project"))
	if err != nil {
		return nil, err
	}
	return projectView(project), nil
}

func (s *Set) projectSwitch(ctx context.Context, req *dispatch.Request) (any, error) {
	project, err := s.stores.Projects.Find(ctx, validate.Str(req.Args, "project"))
	if err != nil {
		return nil, err
	}
	if err := s.sessions.SwitchProject(ctx, req.SessionKey, project.ID); err != nil {
		return nil, err
	}
	return map[string]any{
		"project": projectView(project),
		"message": "session now targets " + project.Name,
	}, nil
}

// projectSetPrimary is the promotion operation: one transaction clears
// the old primary and sets the new, then the session map is cleared so
// the next request per session reinitializes against the new primary.
func (s *Set) projectSetPrimary(ctx context.Context, req *dispatch.Request) (any, error) {
	project, err := s.stores.Projects.Find(ctx, validate.Str(req.Args, "project"))
	if err != nil {
		return nil, err
	}
	if err := s.stores.Projects.SetPrimary(ctx, project.ID); err != nil {
		return nil, err
	}
	if err := s.sessions.Clear(ctx); err != nil {
		s.logger.Warn(ctx, "session cache clear after promotion reported errors", "error", err)
	}
	s.logger.Info(ctx, "primary project changed", "project_id", project.ID, "name", project.Name)
	return map[string]any{
		"project": projectView(project),
		"message": project.Name + " is now the primary project",
	}, nil
}
