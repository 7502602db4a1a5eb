package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/aidis-io/aidis/pkg/models"
)

type postgresContextStore struct {
	db *sql.DB
}

func (s *postgresContextStore) Insert(ctx context.Context, entry *models.ContextEntry) error {
	if entry == nil || entry.ProjectID == "" {
		return fmt.Errorf("context entry with project id is required")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if entry.Tags == nil {
		entry.Tags = []string{}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO contexts (id, project_id, session_id, context_type, content, tags, embedding, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		entry.ID,
		entry.ProjectID,
		nullString(entry.SessionID),
		string(entry.Type),
		entry.Content,
		pq.Array(entry.Tags),
		encodeEmbedding(entry.Embedding),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert context: %w", err)
	}
	return nil
}

// Search ranks a project's contexts by cosine similarity to the query
// embedding. Ties on distance break toward newer entries.
func (s *postgresContextStore) Search(ctx context.Context, projectID string, queryEmbedding []float32, limit int, filter ContextFilter) ([]*models.ContextSearchResult, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if limit <= 0 {
		limit = 10
	}
	queryVec := encodeEmbedding(queryEmbedding)

	query := `
		SELECT id, project_id, session_id, context_type, content, tags, created_at,
			1 - (embedding <=> $2::vector) as similarity
		FROM contexts
		WHERE project_id = $1`
	args := []any{projectID, queryVec}
	argNum := 3

	if filter.Type != "" {
		query += fmt.Sprintf(" AND context_type = $%d", argNum)
		args = append(args, string(filter.Type))
		argNum++
	}
	if len(filter.Tags) > 0 {
		query += fmt.Sprintf(" AND tags && $%d", argNum)
		args = append(args, pq.Array(filter.Tags))
		argNum++
	}

	query += " ORDER BY embedding <=> $2::vector ASC, created_at DESC"
	query += fmt.Sprintf(" LIMIT $%d", argNum)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search contexts: %w", err)
	}
	defer rows.Close()

	results := []*models.ContextSearchResult{}
	for rows.Next() {
		var entry models.ContextEntry
		var sessionID sql.NullString
		var tags []string
		var similarity float64
		if err := rows.Scan(
			&entry.ID,
			&entry.ProjectID,
			&sessionID,
			&entry.Type,
			&entry.Content,
			pq.Array(&tags),
			&entry.CreatedAt,
			&similarity,
		); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		entry.SessionID = sessionID.String
		entry.Tags = tags
		results = append(results, &models.ContextSearchResult{
			Entry:      &entry,
			Similarity: clampSimilarity(similarity),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search contexts: %w", err)
	}
	return results, nil
}

func (s *postgresContextStore) Recent(ctx context.Context, projectID string, limit int) ([]*models.ContextEntry, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, project_id, session_id, context_type, content, tags, created_at
		FROM contexts
		WHERE project_id = $1
		ORDER BY created_at DESC
		LIMIT $2`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent contexts: %w", err)
	}
	defer rows.Close()

	entries := []*models.ContextEntry{}
	for rows.Next() {
		var entry models.ContextEntry
		var sessionID sql.NullString
		var tags []string
		if err := rows.Scan(
			&entry.ID,
			&entry.ProjectID,
			&sessionID,
			&entry.Type,
			&entry.Content,
			pq.Array(&tags),
			&entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan context: %w", err)
		}
		entry.SessionID = sessionID.String
		entry.Tags = tags
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent contexts: %w", err)
	}
	return entries, nil
}

func (s *postgresContextStore) Stats(ctx context.Context, projectID string) (*models.ContextStats, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required")
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT context_type, count(*)
		FROM contexts
		WHERE project_id = $1
		GROUP BY context_type`, projectID)
	if err != nil {
		return nil, fmt.Errorf("context stats: %w", err)
	}
	defer rows.Close()

	stats := &models.ContextStats{ByType: map[string]int{}}
	for rows.Next() {
		var contextType string
		var count int
		if err := rows.Scan(&contextType, &count); err != nil {
			return nil, fmt.Errorf("scan context stats: %w", err)
		}
		stats.ByType[contextType] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("context stats: %w", err)
	}
	return stats, nil
}

// clampSimilarity maps 1 - cosine_distance into [0,1]. Distances above 1
// (opposed vectors) clamp to zero.
func clampSimilarity(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
