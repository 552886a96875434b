package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/database"
	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/jackc/pgx/v5"
)

// AttemptRepository handles database operations for the attempt ledger.
// Inserts only; rows are never updated.
type AttemptRepository struct {
	db *database.DB
}

// NewAttemptRepository creates a new AttemptRepository
func NewAttemptRepository(db *database.DB) *AttemptRepository {
	return &AttemptRepository{db: db}
}

// Record appends one attempt row to the ledger
func (r *AttemptRepository) Record(ctx context.Context, attempt *models.AuthAttempt) error {
	query := `
		INSERT INTO auth_attempts (id, identity, action, success, failure_reason, ip_address, user_agent, client_signature, attempt_time, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		attempt.ID,
		attempt.Identity,
		string(attempt.Action),
		attempt.Success,
		attempt.FailureReason,
		attempt.IPAddress,
		attempt.UserAgent,
		attempt.ClientSignature,
		attempt.AttemptTime,
		attempt.ExpiresAt,
	)

	return err
}

// CountFailures returns the number of failed attempts for an identity and
// action strictly newer than `since`. The strict comparison keeps an attempt
// exactly one window old out of the count.
func (r *AttemptRepository) CountFailures(ctx context.Context, identity string, action models.AuthAction, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM auth_attempts
		WHERE identity = $1 AND action = $2 AND success = false AND attempt_time > $3
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, identity, string(action), since).Scan(&count)
	return count, err
}

// CountAttempts returns the number of attempts for an identity and action
// strictly newer than `since`, regardless of outcome. Used for actions where
// every request consumes budget (password resets, notifications).
func (r *AttemptRepository) CountAttempts(ctx context.Context, identity string, action models.AuthAction, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM auth_attempts
		WHERE identity = $1 AND action = $2 AND attempt_time > $3
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, identity, string(action), since).Scan(&count)
	return count, err
}

// OldestAttemptTime returns the timestamp of the oldest counted attempt for
// an identity and action, regardless of outcome.
func (r *AttemptRepository) OldestAttemptTime(ctx context.Context, identity string, action models.AuthAction, since time.Time) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM auth_attempts
		WHERE identity = $1 AND action = $2 AND attempt_time > $3
		ORDER BY attempt_time ASC
		LIMIT 1
	`

	var attemptTime time.Time
	err := r.db.Pool.QueryRow(ctx, query, identity, string(action), since).Scan(&attemptTime)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &attemptTime, nil
}

// OldestFailureTime returns the timestamp of the oldest counted failure for
// an identity and action, used to derive a retry-after hint.
func (r *AttemptRepository) OldestFailureTime(ctx context.Context, identity string, action models.AuthAction, since time.Time) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM auth_attempts
		WHERE identity = $1 AND action = $2 AND success = false AND attempt_time > $3
		ORDER BY attempt_time ASC
		LIMIT 1
	`

	var failureTime time.Time
	err := r.db.Pool.QueryRow(ctx, query, identity, string(action), since).Scan(&failureTime)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &failureTime, nil
}

// DistinctSuccessOrigins returns the distinct network origins of successful
// login attempts for an identity within a window, used by risk analysis.
func (r *AttemptRepository) DistinctSuccessOrigins(ctx context.Context, identity string, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT ip_address FROM auth_attempts
		WHERE identity = $1 AND action = $2 AND success = true AND attempt_time > $3
		ORDER BY ip_address
	`

	rows, err := r.db.Pool.Query(ctx, query, identity, string(models.ActionLogin), since)
	if err != nil {
		return nil, fmt.Errorf("failed to query success origins: %w", err)
	}
	defer rows.Close()

	origins := make([]string, 0)
	for rows.Next() {
		var origin string
		if err := rows.Scan(&origin); err != nil {
			return nil, fmt.Errorf("failed to scan origin: %w", err)
		}
		origins = append(origins, origin)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating origin rows: %w", err)
	}

	return origins, nil
}

// DeleteExpired removes ledger rows past their retention horizon.
// Maintenance-only; nothing in the decision path deletes attempts.
func (r *AttemptRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM auth_attempts WHERE expires_at <= CURRENT_TIMESTAMP`
	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
