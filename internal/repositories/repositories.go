package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/desertthunder/spotstats/internal/models"
	"github.com/desertthunder/spotstats/internal/shared"
)

// TokenStore maps session ids to token records. At most one record exists per id.
type TokenStore interface {
	// Put overwrites any prior record for sessionID.
	Put(ctx context.Context, sessionID string, record *models.TokenRecord) error
	// Get returns shared.ErrSessionNotFound when absent.
	Get(ctx context.Context, sessionID string) (*models.TokenRecord, error)
	// Clear removes the record; clearing an absent id is not an error.
	Clear(ctx context.Context, sessionID string) error
	// Prune drops records older than the retention window.
	Prune(ctx context.Context) (int, error)
}

// NewTokenStore builds the store selected by config. The returned close func releases any database handle.
func NewTokenStore(config *shared.Config) (TokenStore, func() error, error) {
	ttl := config.Session.TTL()

	switch config.Session.Store {
	case shared.StoreMemory:
		return NewMemoryStore(ttl), func() error { return nil }, nil
	case shared.StoreSQLite:
		db, err := shared.NewDatabase(config.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		shared.ConfigureDatabase(db, config.Database.Path, config.Database.MaxOpenConns, config.Database.MaxIdleConns)
		if err := shared.RunMigrations(db); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		return NewSQLiteStore(db, ttl), db.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: unknown session store %q", shared.ErrInvalidConfig, config.Session.Store)
	}
}

func cloneRecord(r *models.TokenRecord) *models.TokenRecord {
	c := *r
	c.Scope = append([]string(nil), r.Scope...)
	return &c
}

func validatePut(sessionID string, record *models.TokenRecord) error {
	if sessionID == "" {
		return fmt.Errorf("%w: empty session id", shared.ErrInvalidInput)
	}
	if err := record.Validate(); err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidInput, err)
	}
	return nil
}

// stale reports whether an entry stored at storedAt is past the retention window.
func stale(storedAt, now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(storedAt) > ttl
}
