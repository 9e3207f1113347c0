package storages

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteDialect is the SQLite flavour of the token schema
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Placeholder(n int) string { return "?" }

func (SQLiteDialect) GetCreateTableStatements() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS issued_tokens (
			token_key TEXT PRIMARY KEY,
			token_type TEXT NOT NULL,
			client_id TEXT NOT NULL,
			data TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		)`,
	}
}

func (SQLiteDialect) GetIndexStatements() []string {
	return []string{
		`CREATE INDEX IF NOT EXISTS idx_issued_tokens_expires_at ON issued_tokens(expires_at)`,
		`CREATE INDEX IF NOT EXISTS idx_issued_tokens_client_id ON issued_tokens(client_id)`,
	}
}

// SQLiteStore is a token store backed by SQLite
type SQLiteStore struct {
	*BaseSQLStore
}

// NewSQLiteStore opens (or creates) the database at dbPath
func NewSQLiteStore(dbPath string, logger *logrus.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	base, err := NewBaseSQLStore(db, SQLiteDialect{}, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize tables: %w", err)
	}

	return &SQLiteStore{BaseSQLStore: base}, nil
}
