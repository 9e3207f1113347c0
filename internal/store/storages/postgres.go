package storages

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

// PostgresDialect is the PostgreSQL flavour of the token schema
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (PostgresDialect) GetCreateTableStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS issued_tokens (
			token_key TEXT PRIMARY KEY,
			token_type TEXT NOT NULL,
			client_id TEXT NOT NULL,
			data JSONB NOT NULL,
			created_at BIGINT NOT NULL,
			expires_at BIGINT NOT NULL
		)`,
	}
}

func (PostgresDialect) GetIndexStatements() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_issued_tokens_expires_at ON issued_tokens(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_issued_tokens_client_id ON issued_tokens(client_id)`,
	}
}

// PostgresStore is a token store backed by PostgreSQL
type PostgresStore struct {
	*BaseSQLStore
}

// NewPostgresStore connects to dbURL and migrates the schema
func NewPostgresStore(dbURL string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL database: %w", err)
	}

	base, err := NewBaseSQLStore(db, PostgresDialect{}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return &PostgresStore{BaseSQLStore: base}, nil
}
