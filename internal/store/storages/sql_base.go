package storages

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"oauth2-tokenserver/internal/models"
	"oauth2-tokenserver/internal/store/types"

	"github.com/sirupsen/logrus"
)

// SQLDialect defines the parts of the token schema that differ between databases
type SQLDialect interface {
	Name() string
	GetCreateTableStatements() []string
	GetIndexStatements() []string
	// Placeholder returns $1, $2 for Postgres or ?, ? for SQLite
	Placeholder(n int) string
}

// BaseSQLStore implements types.TokenStore on database/sql for any SQLDialect
type BaseSQLStore struct {
	db      *sql.DB
	dialect SQLDialect
	logger  *logrus.Logger
	now     func() time.Time
}

// NewBaseSQLStore migrates the schema and returns a ready store
func NewBaseSQLStore(db *sql.DB, dialect SQLDialect, logger *logrus.Logger) (*BaseSQLStore, error) {
	store := &BaseSQLStore{
		db:      db,
		dialect: dialect,
		logger:  logger,
		now:     time.Now,
	}

	if err := store.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate creates the necessary tables and indexes
func (s *BaseSQLStore) migrate() error {
	for _, statement := range s.dialect.GetCreateTableStatements() {
		if _, err := s.db.Exec(statement); err != nil {
			return fmt.Errorf("failed to execute create table statement: %w", err)
		}
	}

	for _, statement := range s.dialect.GetIndexStatements() {
		if _, err := s.db.Exec(statement); err != nil {
			return fmt.Errorf("failed to execute index statement: %w", err)
		}
	}

	return nil
}

func (s *BaseSQLStore) CreateToken(ctx context.Context, token *models.IssuedToken) error {
	data, err := json.Marshal(token)
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO issued_tokens (token_key, token_type, client_id, data, created_at, expires_at)
		VALUES (%s, %s, %s, %s, %s, %s) ON CONFLICT (token_key) DO NOTHING`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2), s.dialect.Placeholder(3),
		s.dialect.Placeholder(4), s.dialect.Placeholder(5), s.dialect.Placeholder(6))

	result, err := s.db.ExecContext(ctx, query,
		token.Key, string(token.Type), token.ClientID, string(data),
		token.CreatedAt.Unix(), token.ExpiresAt.Unix())
	if err != nil {
		return fmt.Errorf("failed to insert token: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read insert result: %w", err)
	}
	if rows == 0 {
		return types.ErrTokenExists
	}

	s.logger.Debugf("💾 [%s] Stored %s for client %s", s.dialect.Name(), token.Type, token.ClientID)
	return nil
}

func (s *BaseSQLStore) GetToken(ctx context.Context, key string) (*models.IssuedToken, error) {
	query := fmt.Sprintf(`SELECT data FROM issued_tokens WHERE token_key = %s AND expires_at > %s`,
		s.dialect.Placeholder(1), s.dialect.Placeholder(2))

	var data string
	err := s.db.QueryRowContext(ctx, query, key, s.now().Unix()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, types.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query token: %w", err)
	}

	var token models.IssuedToken
	if err := json.Unmarshal([]byte(data), &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}

func (s *BaseSQLStore) DeleteToken(ctx context.Context, key string) error {
	query := fmt.Sprintf(`DELETE FROM issued_tokens WHERE token_key = %s`, s.dialect.Placeholder(1))
	if _, err := s.db.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func (s *BaseSQLStore) CleanupExpiredTokens(ctx context.Context) (int, error) {
	query := fmt.Sprintf(`DELETE FROM issued_tokens WHERE expires_at <= %s`, s.dialect.Placeholder(1))
	result, err := s.db.ExecContext(ctx, query, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired tokens: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(rows), nil
}

func (s *BaseSQLStore) CountTokens(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM issued_tokens`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count tokens: %w", err)
	}
	return count, nil
}

func (s *BaseSQLStore) Close() error {
	return s.db.Close()
}
