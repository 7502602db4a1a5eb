package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PoolConfig configures connection pooling for PostgreSQL.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPoolConfig returns default connection pool settings.
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		MaxOpenConns:    20,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 2 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// Open opens a pooled connection and verifies it with a ping.
func Open(dsn string, config *PoolConfig) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	if config == nil {
		config = DefaultPoolConfig()
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// NewPostgresStores opens a pooled connection and returns Postgres-backed
// stores for every entity.
func NewPostgresStores(dsn string, config *PoolConfig) (StoreSet, error) {
	db, err := Open(dsn, config)
	if err != nil {
		return StoreSet{}, err
	}
	return NewStoresFromDB(db), nil
}

// NewStoresFromDB builds a StoreSet over an existing connection. The
// caller keeps ownership of the connection unless it came through
// NewPostgresStores.
func NewStoresFromDB(db *sql.DB) StoreSet {
	return StoreSet{
		Projects:  &postgresProjectStore{db: db},
		Sessions:  &postgresSessionStore{db: db},
		Contexts:  &postgresContextStore{db: db},
		Decisions: &postgresDecisionStore{db: db},
		Tasks:     &postgresTaskStore{db: db},
		pinger:    db.PingContext,
		closer:    db.Close,
	}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// isDuplicate reports whether the driver error came from a unique
// constraint violation.
func isDuplicate(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate")
}
