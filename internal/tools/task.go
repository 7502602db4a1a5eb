package tools

import (
	"context"
	"fmt"

	"github.com/aidis-io/aidis/internal/dispatch"
	"github.com/aidis-io/aidis/internal/storage"
	"github.com/aidis-io/aidis/internal/validate"
	"github.com/aidis-io/aidis/pkg/models"
)

func (s *Set) taskCreate(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}

	deps := validate.StrSlice(req.Args, "dependsOn")
	if len(deps) > 0 {
		if err := s.requireTasks(ctx, projectID, deps); err != nil {
			return nil, err
		}
	}

	task := &models.Task{
		ProjectID:    projectID,
		SessionID:    req.Session.ID,
		Title:        validate.Str(req.Args, "title"),
		Description:  validate.Str(req.Args, "description"),
		Type:         validate.Str(req.Args, "type"),
		Status:       models.TaskTodo,
		Priority:     models.TaskPriority(validate.Str(req.Args, "priority")),
		AssignedTo:   validate.Str(req.Args, "assignedTo"),
		Dependencies: deps,
	}
	if err := s.stores.Tasks.Create(ctx, task); err != nil {
		return nil, err
	}

	s.sessions.Record(req.SessionKey, models.SessionCounters{TasksCreated: 1})
	return task, nil
}

func (s *Set) taskList(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}
	filter := storage.TaskFilter{
		Status:     models.TaskStatus(validate.Str(req.Args, "status")),
		AssignedTo: validate.Str(req.Args, "assignedTo"),
		Limit:      int(validate.Int(req.Args, "limit")),
	}
	tasks, err := s.stores.Tasks.List(ctx, projectID, filter)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tasks": tasks, "total": len(tasks)}, nil
}

func (s *Set) taskUpdate(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}
	id := validate.Str(req.Args, "id")

	task, err := s.stores.Tasks.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}

	var update storage.TaskUpdate
	completing := false

	if validate.Has(req.Args, "dependsOn") {
		deps := validate.StrSlice(req.Args, "dependsOn")
		if err := s.requireTasks(ctx, projectID, deps); err != nil {
			return nil, err
		}
		if err := s.checkAcyclic(ctx, projectID, id, deps); err != nil {
			return nil, err
		}
		update.Dependencies = &deps
		task.Dependencies = deps
	}

	if validate.Has(req.Args, "status") {
		status := models.TaskStatus(validate.Str(req.Args, "status"))
		if status == models.TaskCompleted {
			if err := s.requireDepsTerminal(ctx, projectID, task.Dependencies); err != nil {
				return nil, err
			}
			completing = task.Status != models.TaskCompleted
		}
		update.Status = &status
	}
	if validate.Has(req.Args, "priority") {
		priority := models.TaskPriority(validate.Str(req.Args, "priority"))
		update.Priority = &priority
	}
	if validate.Has(req.Args, "assignedTo") {
		assignee := validate.Str(req.Args, "assignedTo")
		update.AssignedTo = &assignee
	}

	if err := s.stores.Tasks.Update(ctx, projectID, id, update); err != nil {
		return nil, err
	}

	delta := models.SessionCounters{TasksUpdated: 1}
	if completing {
		delta.TasksCompleted = 1
	}
	s.sessions.Record(req.SessionKey, delta)

	updated, err := s.stores.Tasks.Get(ctx, projectID, id)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Set) taskDetails(ctx context.Context, req *dispatch.Request) (any, error) {
	projectID, err := s.projectID(ctx, req)
	if err != nil {
		return nil, err
	}
	task, err := s.stores.Tasks.Get(ctx, projectID, validate.Str(req.Args, "id"))
	if err != nil {
		return nil, err
	}

	deps := map[string]string{}
	if len(task.Dependencies) > 0 {
		statuses, err := s.stores.Tasks.Statuses(ctx, projectID, task.Dependencies)
		if err != nil {
			return nil, err
		}
		for depID, status := range statuses {
			deps[depID] = string(status)
		}
	}
	return map[string]any{
		"task":         task,
		"dependencies": deps,
	}, nil
}

// requireTasks verifies every id exists in the project.
func (s *Set) requireTasks(ctx context.Context, projectID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	statuses, err := s.stores.Tasks.Statuses(ctx, projectID, ids)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if _, ok := statuses[id]; !ok {
			return fmt.Errorf("dependency task %s: %w", id, storage.ErrNotFound)
		}
	}
	return nil
}

// requireDepsTerminal gates completion: every dependency must be
// completed or cancelled.
func (s *Set) requireDepsTerminal(ctx context.Context, projectID string, deps []string) error {
	if len(deps) == 0 {
		return nil
	}
	statuses, err := s.stores.Tasks.Statuses(ctx, projectID, deps)
	if err != nil {
		return err
	}
	for _, dep := range deps {
		if !statuses[dep].Terminal() {
			return fmt.Errorf("dependency %s is %s: %w", dep, statuses[dep], storage.ErrConflict)
		}
	}
	return nil
}

// checkAcyclic rejects a dependency edit that would put id on a cycle.
// The project's full edge set is loaded and the edit applied before
// walking, so the database never holds a cyclic graph.
func (s *Set) checkAcyclic(ctx context.Context, projectID, id string, newDeps []string) error {
	edges, err := s.stores.Tasks.Edges(ctx, projectID)
	if err != nil {
		return err
	}
	edges[id] = newDeps

	seen := map[string]bool{}
	var walk func(node string) bool
	walk = func(node string) bool {
		if node == id {
			return true
		}
		if seen[node] {
			return false
		}
		seen[node] = true
		for _, next := range edges[node] {
			if walk(next) {
				return true
			}
		}
		return false
	}
	for _, dep := range newDeps {
		if walk(dep) {
			return fmt.Errorf("dependency cycle through task %s: %w", dep, storage.ErrConflict)
		}
	}
	return nil
}
