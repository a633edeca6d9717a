package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// GetLastUID returns the highest inbound IMAP UID processed so far
func (db *DB) GetLastUID(ctx context.Context) (uint32, error) {
	var uid uint32
	query := `SELECT last_uid FROM intake_state WHERE id = 1`
	err := db.GetContext(ctx, &uid, query)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last uid: %w", err)
	}
	return uid, nil
}

// SetLastUID persists the intake cursor so restarts do not reprocess mail
func (db *DB) SetLastUID(ctx context.Context, uid uint32) error {
	query := `
		INSERT INTO intake_state (id, last_uid, updated_at) VALUES (1, ?, ?)
		ON CONFLICT(id) DO UPDATE SET last_uid = excluded.last_uid, updated_at = excluded.updated_at
	`
	_, err := db.ExecContext(ctx, query, uid, time.Now())
	if err != nil {
		return fmt.Errorf("failed to set last uid: %w", err)
	}
	return nil
}
