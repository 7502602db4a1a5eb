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

type postgresSessionStore struct {
	db *sql.DB
}

func (s *postgresSessionStore) Create(ctx context.Context, session *models.Session) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	if session.DisplayID == "" {
		session.DisplayID = DisplayID(session.StartedAt, session.ID)
	}
	if session.Metadata == nil {
		session.Metadata = map[string]any{}
	}

	metadata, err := json.Marshal(session.Metadata)
	if err != nil {
		return fmt.Errorf("marshal session metadata: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, display_id, project_id, agent_type, title, description, started_at, metadata)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		session.ID,
		session.DisplayID,
		nullString(session.ProjectID),
		session.AgentType,
		session.Title,
		session.Description,
		session.StartedAt,
		metadata,
	)
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("session %s: %w", session.ID, ErrConflict)
		}
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

func (s *postgresSessionStore) Get(ctx context.Context, id string) (*models.Session, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT id, display_id, project_id, agent_type, title, description,
			started_at, ended_at, input_tokens, output_tokens, total_tokens,
			contexts_created, tasks_created, tasks_updated, tasks_completed, metadata
		FROM sessions WHERE id = $1`, id)

	var session models.Session
	var projectID sql.NullString
	var endedAt sql.NullTime
	var metadata []byte
	if err := row.Scan(
		&session.ID,
		&session.DisplayID,
		&projectID,
		&session.AgentType,
		&session.Title,
		&session.Description,
		&session.StartedAt,
		&endedAt,
		&session.InputTokens,
		&session.OutputTokens,
		&session.TotalTokens,
		&session.ContextsCreated,
		&session.TasksCreated,
		&session.TasksUpdated,
		&session.TasksCompleted,
		&metadata,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	session.ProjectID = projectID.String
	if endedAt.Valid {
		t := endedAt.Time
		session.EndedAt = &t
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &session.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal session metadata: %w", err)
		}
	}
	return &session, nil
}

func (s *postgresSessionStore) SetProject(ctx context.Context, id, projectID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET project_id = $2 WHERE id = $1`,
		id, nullString(projectID))
	if err != nil {
		return fmt.Errorf("set session project: %w", err)
	}
	return requireRow(res, "set session project")
}

func (s *postgresSessionStore) UpdateInfo(ctx context.Context, id, title, description string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET title = COALESCE(NULLIF($2, ''), title),
		     description = COALESCE(NULLIF($3, ''), description)
		 WHERE id = $1`,
		id, title, description)
	if err != nil {
		return fmt.Errorf("update session info: %w", err)
	}
	return requireRow(res, "update session info")
}

func (s *postgresSessionStore) AddCounters(ctx context.Context, id string, c models.SessionCounters) error {
	if c.Zero() {
		return nil
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions
		 SET input_tokens = input_tokens + $2,
		     output_tokens = output_tokens + $3,
		     total_tokens = total_tokens + $2 + $3,
		     contexts_created = contexts_created + $4,
		     tasks_created = tasks_created + $5,
		     tasks_updated = tasks_updated + $6,
		     tasks_completed = tasks_completed + $7
		 WHERE id = $1`,
		id,
		c.InputTokens,
		c.OutputTokens,
		c.ContextsCreated,
		c.TasksCreated,
		c.TasksUpdated,
		c.TasksCompleted,
	)
	if err != nil {
		return fmt.Errorf("add session counters: %w", err)
	}
	return requireRow(res, "add session counters")
}

func (s *postgresSessionStore) End(ctx context.Context, id string, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = $2 WHERE id = $1 AND ended_at IS NULL`,
		id, endedAt)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return requireRow(res, "end session")
}

// DisplayID builds the human-visible session id, e.g. 20250824-4f3a2b1c.
func DisplayID(startedAt time.Time, id string) string {
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s-%s", startedAt.UTC().Format("20060102"), short)
}

func requireRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
