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

type postgresDecisionStore struct {
	db *sql.DB
}

const decisionColumns = `id, project_id, session_id, title, description, problem_statement,
	rationale, alternatives, impact_level, decision_type, status, superseded_by,
	outcome, lessons, created_at, updated_at`

func (s *postgresDecisionStore) Create(ctx context.Context, decision *models.Decision) error {
	if decision == nil || decision.ProjectID == "" {
		return fmt.Errorf("decision with project id is required")
	}
	if decision.ID == "" {
		decision.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if decision.CreatedAt.IsZero() {
		decision.CreatedAt = now
	}
	decision.UpdatedAt = now
	if decision.Status == "" {
		decision.Status = models.DecisionActive
	}
	if decision.Alternatives == nil {
		decision.Alternatives = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO technical_decisions
		 (id, project_id, session_id, title, description, problem_statement, rationale,
		  alternatives, impact_level, decision_type, status, superseded_by, outcome, lessons,
		  created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)`,
		decision.ID,
		decision.ProjectID,
		nullString(decision.SessionID),
		decision.Title,
		decision.Description,
		decision.ProblemStatement,
		decision.Rationale,
		pq.Array(decision.Alternatives),
		string(decision.ImpactLevel),
		decision.Type,
		string(decision.Status),
		nullString(decision.SupersededBy),
		decision.Outcome,
		decision.Lessons,
		decision.CreatedAt,
		decision.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create decision: %w", err)
	}
	return nil
}

func (s *postgresDecisionStore) Get(ctx context.Context, projectID, id string) (*models.Decision, error) {
	if projectID == "" || id == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+decisionColumns+` FROM technical_decisions WHERE project_id = $1 AND id = $2`,
		projectID, id)

	decision, err := scanDecision(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get decision: %w", err)
	}
	return decision, nil
}

func (s *postgresDecisionStore) Search(ctx context.Context, projectID string, filter DecisionFilter) ([]*models.Decision, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	var query strings.Builder
	query.WriteString(`SELECT ` + decisionColumns + ` FROM technical_decisions WHERE project_id = $1`)
	args := []any{projectID}
	argNum := 2

	if filter.Query != "" {
		query.WriteString(fmt.Sprintf(
			" AND (title ILIKE $%d OR description ILIKE $%d OR rationale ILIKE $%d)",
			argNum, argNum, argNum))
		args = append(args, "%"+filter.Query+"%")
		argNum++
	}
	if filter.ImpactLevel != "" {
		query.WriteString(fmt.Sprintf(" AND impact_level = $%d", argNum))
		args = append(args, string(filter.ImpactLevel))
		argNum++
	}
	if filter.Status != "" {
		query.WriteString(fmt.Sprintf(" AND status = $%d", argNum))
		args = append(args, string(filter.Status))
		argNum++
	}
	if filter.Type != "" {
		query.WriteString(fmt.Sprintf(" AND decision_type = $%d", argNum))
		args = append(args, filter.Type)
		argNum++
	}

	query.WriteString(" ORDER BY created_at DESC")
	query.WriteString(fmt.Sprintf(" LIMIT $%d", argNum))
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("search decisions: %w", err)
	}
	defer rows.Close()

	decisions := []*models.Decision{}
	for rows.Next() {
		decision, err := scanDecision(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		decisions = append(decisions, decision)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search decisions: %w", err)
	}
	return decisions, nil
}

func (s *postgresDecisionStore) Update(ctx context.Context, projectID, id string, update DecisionUpdate) error {
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
	if update.Outcome != nil {
		sets = append(sets, fmt.Sprintf("outcome = $%d", argNum))
		args = append(args, *update.Outcome)
		argNum++
	}
	if update.Lessons != nil {
		sets = append(sets, fmt.Sprintf("lessons = $%d", argNum))
		args = append(args, *update.Lessons)
		argNum++
	}
	if update.SupersededBy != nil {
		sets = append(sets, fmt.Sprintf("superseded_by = $%d", argNum))
		args = append(args, nullString(*update.SupersededBy))
		argNum++
	}

	query := fmt.Sprintf(
		`UPDATE technical_decisions SET %s WHERE project_id = $1 AND id = $2`,
		strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update decision: %w", err)
	}
	return requireRow(res, "update decision")
}

func (s *postgresDecisionStore) Stats(ctx context.Context, projectID string) (*models.DecisionStats, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT status, impact_level, count(*)
		FROM technical_decisions
		WHERE project_id = $1
		GROUP BY status, impact_level`, projectID)
	if err != nil {
		return nil, fmt.Errorf("decision stats: %w", err)
	}
	defer rows.Close()

	stats := &models.DecisionStats{ByStatus: map[string]int{}, ByImpact: map[string]int{}}
	for rows.Next() {
		var status, impact string
		var count int
		if err := rows.Scan(&status, &impact, &count); err != nil {
			return nil, fmt.Errorf("scan decision stats: %w", err)
		}
		stats.ByStatus[status] += count
		stats.ByImpact[impact] += count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("decision stats: %w", err)
	}
	return stats, nil
}

func scanDecision(scan func(...any) error) (*models.Decision, error) {
	var decision models.Decision
	var sessionID, supersededBy sql.NullString
	var alternatives []string
	if err := scan(
		&decision.ID,
		&decision.ProjectID,
		&sessionID,
		&decision.Title,
		&decision.Description,
		&decision.ProblemStatement,
		&decision.Rationale,
		pq.Array(&alternatives),
		&decision.ImpactLevel,
		&decision.Type,
		&decision.Status,
		&supersededBy,
		&decision.Outcome,
		&decision.Lessons,
		&decision.CreatedAt,
		&decision.UpdatedAt,
	); err != nil {
		return nil, err
	}
	decision.SessionID = sessionID.String
	decision.SupersededBy = supersededBy.String
	decision.Alternatives = alternatives
	return &decision, nil
}
