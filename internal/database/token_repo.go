package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mixelka/replypost/pkg/models"
)

// ErrNotFound is returned when a record is not found
var ErrNotFound = errors.New("record not found")

// ErrAlreadyExists is returned when trying to insert a duplicate record
var ErrAlreadyExists = errors.New("record already exists")

// CreateToken stores a freshly minted reply token. Returns ErrAlreadyExists
// when the code collides with an existing one so callers can redraw.
func (db *DB) CreateToken(ctx context.Context, token *models.ReplyToken) error {
	query := `
		INSERT OR IGNORE INTO reply_tokens (code, user_id, action, context_post_id, response_post_id, allowed_from, used_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		token.Code,
		token.UserID,
		token.Action,
		token.ContextPostID,
		token.ResponsePostID,
		token.AllowedFrom,
		token.UsedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrAlreadyExists
	}

	token.CreatedAt = now
	return nil
}

// GetToken returns a reply token by its code
func (db *DB) GetToken(ctx context.Context, code string) (*models.ReplyToken, error) {
	var token models.ReplyToken
	query := `SELECT * FROM reply_tokens WHERE code = ?`
	err := db.GetContext(ctx, &token, query, code)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &token, nil
}

// MarkTokenUsed stamps used_at and, only the first time, the post the token
// produced. Action and context columns are never touched after minting.
func (db *DB) MarkTokenUsed(ctx context.Context, code string, at time.Time, responsePost *int64) error {
	query := `UPDATE reply_tokens SET used_at = ?, response_post_id = COALESCE(response_post_id, ?) WHERE code = ?`
	_, err := db.ExecContext(ctx, query, at, responsePost, code)
	if err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	return nil
}
