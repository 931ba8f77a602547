package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/desertthunder/spotstats/internal/models"
	"github.com/desertthunder/spotstats/internal/shared"
)

// SQLiteStore implements [TokenStore] on the sessions table created by [shared.RunMigrations].
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore creates a store on a migrated database.
func NewSQLiteStore(db *sql.DB, ttl time.Duration) *SQLiteStore {
	return &SQLiteStore{db: db, ttl: ttl, now: time.Now}
}

func (s *SQLiteStore) Put(ctx context.Context, sessionID string, record *models.TokenRecord) error {
	if err := validatePut(sessionID, record); err != nil {
		return err
	}

	var expiresAt int64
	if !record.ExpiresAt.IsZero() {
		expiresAt = record.ExpiresAt.UnixNano()
	}

	query := `
		INSERT INTO sessions (id, access_token, refresh_token, token_type, scope, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			scope = excluded.scope,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`

	_, err := s.db.ExecContext(ctx, query,
		sessionID, record.AccessToken, record.RefreshToken, record.TokenType,
		record.ScopeString(), expiresAt, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, sessionID string) (*models.TokenRecord, error) {
	query := `
		SELECT access_token, refresh_token, token_type, scope, expires_at, created_at
		FROM sessions
		WHERE id = ?
	`

	var (
		record    models.TokenRecord
		scope     string
		expiresAt int64
		createdAt int64
	)

	err := s.db.QueryRowContext(ctx, query, sessionID).Scan(
		&record.AccessToken, &record.RefreshToken, &record.TokenType, &scope, &expiresAt, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query session: %w", err)
	}

	if stale(time.Unix(0, createdAt), s.now(), s.ttl) {
		return nil, shared.ErrSessionNotFound
	}

	if expiresAt != 0 {
		record.ExpiresAt = time.Unix(0, expiresAt)
	}
	record.Scope = strings.Fields(scope)

	return &record, nil
}

func (s *SQLiteStore) Clear(ctx context.Context, sessionID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE id = ?", sessionID); err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Prune(ctx context.Context) (int, error) {
	if s.ttl <= 0 {
		return 0, nil
	}

	cutoff := s.now().Add(-s.ttl).UnixNano()
	result, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(rows), nil
}
