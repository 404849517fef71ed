package repository

import (
	"context"
	"fmt"

	"github.com/linkpeek/linkpeek/internal/model"
)

// InsertRecoveryAttempt appends one recovery attempt row.
func (r *Repository) InsertRecoveryAttempt(ctx context.Context, attempt *model.RecoveryAttempt) error {
	query := `
		INSERT INTO recovery_attempts (id, link_id, user_id, strategy, success, platform, device, browser, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		attempt.ID,
		attempt.LinkID,
		nullableString(attempt.UserID),
		attempt.Strategy,
		attempt.Success,
		attempt.Platform,
		attempt.Device,
		attempt.Browser,
		attempt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert recovery attempt: %w", err)
	}
	return nil
}
