package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aidis-io/aidis/pkg/models"
)

type postgresTaskStore struct {
	db *sql.DB
}

const taskColumns = `id, project_id, session_id, title, description, task_type,
	status, priority, assigned_to, dependencies, created_at, updated_at`

func (s *postgresTaskStore) Create(ctx context.Context, task *models.Task) error {
	if task == nil || task.ProjectID == "" {
		return fmt.Errorf("task with project id is required")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.Status == "" {
		task.Status = models.TaskTodo
	}
	if task.Priority == "" {
		task.Priority = models.PriorityMedium
	}
	if task.Type == "" {
		task.Type = "general"
	}
	if task.Dependencies == nil {
		task.Dependencies = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (id, project_id, session_id, title, description, task_type,
		  status, priority, assigned_to, dependencies, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		task.ID,
		task.ProjectID,
		nullString(task.SessionID),
		task.Title,
		task.Description,
		task.Type,
		string(task.Status),
		string(task.Priority),
		task.AssignedTo,
		pq.Array(task.Dependencies),
		task.CreatedAt,
		task.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (s *postgresTaskStore) Get(ctx context.Context, projectID, id string) (*models.Task, error) {
	if projectID == "" || id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE project_id = $1 AND id = $2`,
		projectID, id)

	task, err := scanTask(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return task, nil
}

func (s *postgresTaskStore) List(ctx context.Context, projectID string, filter TaskFilter) ([]*models.Task, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	var query strings.Builder
	query.WriteString(`SELECT ` + taskColumns + ` FROM tasks WHERE project_id = $1`)
	args := []any{projectID}
	argNum := 2

	if filter.Status != "" {
		query.WriteString(fmt.Sprintf(" AND status = $%d", argNum))
		args = append(args, string(filter.Status))
		argNum++
	}
	if filter.AssignedTo != "" {
		query.WriteString(fmt.Sprintf(" AND assigned_to = $%d", argNum))
		args = append(args, filter.AssignedTo)
		argNum++
	}

	query.WriteString(" ORDER BY created_at DESC")
	query.WriteString(fmt.Sprintf(" LIMIT $%d", argNum))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	tasks := []*models.Task{}
	for rows.Next() {
		task, err := scanTask(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (s *postgresTaskStore) Update(ctx context.Context, projectID, id string, update TaskUpdate) error {
	if projectID == "" || id == "" {
		return ErrNotFound
	}

	sets := []string{"updated_at = now()"}
	args := []any{projectID, id}
	argNum := 3

	if update.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", argNum))
		args = append(args, string(*update.Status))
		argNum++
	}
	if update.Priority != nil {
		sets = append(sets, fmt.Sprintf("priority = $%d", argNum))
		args = append(args, string(*update.Priority))
		argNum++
	}
	if update.AssignedTo != nil {
		sets = append(sets, fmt.Sprintf("assigned_to = $%d", argNum))
		args = append(args, *update.AssignedTo)
		argNum++
	}
	if update.Dependencies != nil {
		sets = append(sets, fmt.Sprintf("dependencies = $%d", argNum))
		args = append(args, pq.Array(*update.Dependencies))
		argNum++
	}

	query := fmt.Sprintf(
		`UPDATE tasks SET %s WHERE project_id = $1 AND id = $2`,
		strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	return requireRow(res, "update task")
}

func (s *postgresTaskStore) Edges(ctx context.Context, projectID string) (map[string][]string, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, dependencies FROM tasks WHERE project_id = $1`, projectID)
	if err != nil {
		return nil, fmt.Errorf("task edges: %w", err)
	}
	defer rows.Close()

	edges := map[string][]string{}
	for rows.Next() {
		var id string
		var deps []string
		if err := rows.Scan(&id, pq.Array(&deps)); err != nil {
			return nil, fmt.Errorf("scan task edges: %w", err)
		}
		edges[id] = deps
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task edges: %w", err)
	}
	return edges, nil
}

func (s *postgresTaskStore) Statuses(ctx context.Context, projectID string, ids []string) (map[string]models.TaskStatus, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	statuses := map[string]models.TaskStatus{}
	if len(ids) == 0 {
		return statuses, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, status FROM tasks WHERE project_id = $1 AND id = ANY($2::uuid[])`,
		projectID, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("task statuses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan task status: %w", err)
		}
		statuses[id] = models.TaskStatus(status)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("task statuses: %w", err)
	}
	return statuses, nil
}

func scanTask(scan func(...any) error) (*models.Task, error) {
	var task models.Task
	var sessionID sql.NullString
	var dependencies []string
	if err := scan(
		&task.ID,
		&task.ProjectID,
		&sessionID,
		&task.Title,
		&task.Description,
		&task.Type,
		&task.Status,
		&task.Priority,
		&task.AssignedTo,
		pq.Array(&dependencies),
		&task.CreatedAt,
		&task.UpdatedAt,
	); err != nil {
		return nil, err
	}
	task.SessionID = sessionID.String
	task.Dependencies = dependencies
	return &task, nil
}
