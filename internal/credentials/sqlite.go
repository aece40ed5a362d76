package credentials

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/lutron-gateway/internal/bridges/lutron"
	"github.com/nerrad567/lutron-gateway/internal/infrastructure/database"
)

// SQLiteStore keeps bundles in the bridge_credentials table.
// The table is created by the gateway migrations.
type SQLiteStore struct {
	db *database.DB
}

// NewSQLiteStore returns a store on a migrated database.
func NewSQLiteStore(db *database.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Get loads the bundle of one bridge.
func (s *SQLiteStore) Get(ctx context.Context, bridgeType, bridgeID string) (*lutron.CredentialBundle, error) {
	if err := checkKey(bridgeType, bridgeID); err != nil {
		return nil, err
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		"SELECT bundle FROM bridge_credentials WHERE bridge_type = ? AND bridge_id = ?",
		bridgeType, bridgeID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s: %w", bridgeType, bridgeID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("querying credentials: %w", err)
	}

	var bundle lutron.CredentialBundle
	if err := json.Unmarshal([]byte(raw), &bundle); err != nil {
		return nil, fmt.Errorf("decoding credentials for %s %s: %w", bridgeType, bridgeID, err)
	}
	return &bundle, nil
}

// Put inserts or replaces the bundle of one bridge.
func (s *SQLiteStore) Put(ctx context.Context, bridgeType, bridgeID string, bundle *lutron.CredentialBundle) error {
	if err := checkKey(bridgeType, bridgeID); err != nil {
		return err
	}
	if bundle == nil {
		return fmt.Errorf("storing credentials for %s %s: nil bundle", bridgeType, bridgeID)
	}

	raw, err := json.Marshal(bundle)
	if err != nil {
		return fmt.Errorf("encoding credentials: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bridge_credentials (bridge_type, bridge_id, bundle, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (bridge_type, bridge_id)
		DO UPDATE SET bundle = excluded.bundle, updated_at = excluded.updated_at
	`, bridgeType, bridgeID, string(raw), now, now)
	if err != nil {
		return fmt.Errorf("storing credentials for %s %s: %w", bridgeType, bridgeID, err)
	}
	return nil
}

// Close is a no-op; the database is owned by the caller.
func (s *SQLiteStore) Close() error {
	return nil
}
