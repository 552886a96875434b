package repositories

import (
	"context"
	"fmt"

	"github.com/Ray-dawg/Myralight-sub002/internal/database"
	"github.com/Ray-dawg/Myralight-sub002/internal/models"
)

// LockStateRepository handles per-account lock state persistence
type LockStateRepository struct {
	db *database.DB
}

// NewLockStateRepository creates a new LockStateRepository
func NewLockStateRepository(db *database.DB) *LockStateRepository {
	return &LockStateRepository{db: db}
}

// Get fetches the lock state for a user id
func (r *LockStateRepository) Get(ctx context.Context, userID string) (*models.AccountLockState, error) {
	query := `
		SELECT user_id, locked, locked_until, failed_attempt_count, updated_at
		FROM account_lock_states
		WHERE user_id = $1
	`

	var state models.AccountLockState
	err := r.db.Pool.QueryRow(ctx, query, userID).Scan(
		&state.UserID, &state.Locked, &state.LockedUntil,
		&state.FailedAttemptCount, &state.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &state, nil
}

// Upsert writes the lock state, creating the row on first failure
func (r *LockStateRepository) Upsert(ctx context.Context, state *models.AccountLockState) error {
	query := `
		INSERT INTO account_lock_states (user_id, locked, locked_until, failed_attempt_count, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE SET
			locked = EXCLUDED.locked,
			locked_until = EXCLUDED.locked_until,
			failed_attempt_count = EXCLUDED.failed_attempt_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.db.Pool.Exec(ctx, query,
		state.UserID, state.Locked, state.LockedUntil,
		state.FailedAttemptCount, state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert lock state: %w", err)
	}

	return nil
}
