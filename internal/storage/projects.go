package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aidis-io/aidis/pkg/models"
)

type postgresProjectStore struct {
	db *sql.DB
}

const projectColumns = `id, name, description, metadata, created_at, updated_at`

func (s *postgresProjectStore) Create(ctx context.Context, project *models.Project) error {
	if project == nil || project.Name == "" {
		return fmt.Errorf("project name is required")
	}
	if project.ID == "" {
		project.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	project.UpdatedAt = now
	if project.Metadata == nil {
		project.Metadata = map[string]any{}
	}

	metadata, err := json.Marshal(project.Metadata)
	if err != nil {
		return fmt.Errorf("marshal project metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, description, metadata, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)`,
		project.ID,
		project.Name,
		project.Description,
		metadata,
		project.CreatedAt,
		project.UpdatedAt,
	)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("project %q: %w", project.Name, ErrConflict)
		}
		return fmt.Errorf("create project: %w", err)
	}
	return nil
}

func (s *postgresProjectStore) Get(ctx context.Context, id string) (*models.Project, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	return scanProject(row)
}

func (s *postgresProjectStore) GetByName(ctx context.Context, name string) (*models.Project, error) {
	if name == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE name = $1`, name)
	return scanProject(row)
}

func (s *postgresProjectStore) Find(ctx context.Context, ref string) (*models.Project, error) {
	if _, err := uuid.Parse(ref); err == nil {
		project, err := s.Get(ctx, ref)
		if err == nil {
			return project, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return s.GetByName(ctx, ref)
}

func (s *postgresProjectStore) List(ctx context.Context) ([]*models.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.description, p.metadata, p.created_at, p.updated_at,
			(SELECT count(*) FROM contexts c WHERE c.project_id = p.id),
			(SELECT count(*) FROM sessions s WHERE s.project_id = p.id)
		FROM projects p
		ORDER BY p.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	projects := []*models.Project{}
	for rows.Next() {
		var project models.Project
		var metadata []byte
		if err := rows.Scan(
			&project.ID,
			&project.Name,
			&project.Description,
			&metadata,
			&project.CreatedAt,
			&project.UpdatedAt,
			&project.ContextCount,
			&project.SessionCount,
		); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &project.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal project metadata: %w", err)
			}
		}
		projects = append(projects, &project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

func (s *postgresProjectStore) GetPrimary(ctx context.Context) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects WHERE metadata->>'is_primary' = 'true'`)
	return scanProject(row)
}

// SetPrimary clears the previous primary flag and sets the new one in one
// transaction, so readers never observe two primaries.
func (s *postgresProjectStore) SetPrimary(ctx context.Context, id string) error {
	if id == "" {
		return ErrNotFound
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin set primary: %w", err)
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			_ = err
		}
	}()

	_, err = tx.ExecContext(ctx,
		`UPDATE projects
		 SET metadata = metadata - 'is_primary', updated_at = now()
		 WHERE metadata->>'is_primary' = 'true' AND id <> $1`, id)
	if err != nil {
		return fmt.Errorf("clear primary flag: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE projects
		 SET metadata = jsonb_set(metadata, '{is_primary}', 'true'::jsonb), updated_at = now()
		 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("set primary flag: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set primary flag: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	return tx.Commit()
}

func (s *postgresProjectStore) First(ctx context.Context) (*models.Project, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+projectColumns+` FROM projects LIMIT 1`)
	return scanProject(row)
}

func scanProject(row *sql.Row) (*models.Project, error) {
	var project models.Project
	var metadata []byte
	if err := row.Scan(
		&project.ID,
		&project.Name,
		&project.Description,
		&metadata,
		&project.CreatedAt,
		&project.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &project.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal project metadata: %w", err)
		}
	}
	return &project, nil
}
