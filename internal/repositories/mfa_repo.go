package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/database"
	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/jackc/pgx/v5"
)

// MFARepository handles factor and challenge persistence
type MFARepository struct {
	db *database.DB
}

// NewMFARepository creates a new MFARepository
func NewMFARepository(db *database.DB) *MFARepository {
	return &MFARepository{db: db}
}

// CreateFactor inserts a newly enrolled factor
func (r *MFARepository) CreateFactor(ctx context.Context, factor *models.MFAFactor) error {
	query := `
		INSERT INTO mfa_factors (id, user_id, type, status, secret_encrypted, secret_nonce, destination, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		factor.ID, factor.UserID, string(factor.Type), string(factor.Status),
		factor.SecretEncrypted, factor.SecretNonce, factor.Destination, factor.CreatedAt,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

func scanFactor(row pgx.Row) (*models.MFAFactor, error) {
	var factor models.MFAFactor
	err := row.Scan(
		&factor.ID, &factor.UserID, &factor.Type, &factor.Status,
		&factor.SecretEncrypted, &factor.SecretNonce, &factor.Destination,
		&factor.CreatedAt, &factor.ActivatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}
	return &factor, nil
}

const factorColumns = `id, user_id, type, status, secret_encrypted, secret_nonce, destination, created_at, activated_at`

// GetFactor fetches a factor by id
func (r *MFARepository) GetFactor(ctx context.Context, factorID string) (*models.MFAFactor, error) {
	query := `SELECT ` + factorColumns + ` FROM mfa_factors WHERE id = $1`
	return scanFactor(r.db.Pool.QueryRow(ctx, query, factorID))
}

// GetActiveFactor fetches the single active factor of a type for a user
func (r *MFARepository) GetActiveFactor(ctx context.Context, userID string, typ models.FactorType) (*models.MFAFactor, error) {
	query := `
		SELECT ` + factorColumns + ` FROM mfa_factors
		WHERE user_id = $1 AND type = $2 AND status = $3
	`
	return scanFactor(r.db.Pool.QueryRow(ctx, query, userID, string(typ), string(models.FactorActive)))
}

// ListActiveFactors returns all active factors for a user
func (r *MFARepository) ListActiveFactors(ctx context.Context, userID string) ([]*models.MFAFactor, error) {
	query := `
		SELECT ` + factorColumns + ` FROM mfa_factors
		WHERE user_id = $1 AND status = $2
		ORDER BY created_at
	`

	rows, err := r.db.Pool.Query(ctx, query, userID, string(models.FactorActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query active factors: %w", err)
	}
	defer rows.Close()

	factors := make([]*models.MFAFactor, 0)
	for rows.Next() {
		factor, err := scanFactor(rows)
		if err != nil {
			return nil, err
		}
		factors = append(factors, factor)
	}

	return factors, rows.Err()
}

// UpdateFactorStatus transitions a factor's lifecycle state
func (r *MFARepository) UpdateFactorStatus(ctx context.Context, factorID string, status models.FactorStatus, activatedAt *time.Time) error {
	query := `
		UPDATE mfa_factors
		SET status = $2, activated_at = COALESCE($3, activated_at)
		WHERE id = $1
	`

	result, err := r.db.Pool.Exec(ctx, query, factorID, string(status), activatedAt)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return nil
}

// CreateChallenge inserts a new single-use challenge
func (r *MFARepository) CreateChallenge(ctx context.Context, challenge *models.MFAChallenge) error {
	query := `
		INSERT INTO mfa_challenges (id, factor_id, code_hash, issued_at, expires_at, attempt_count)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		challenge.ID, challenge.FactorID, challenge.CodeHash,
		challenge.IssuedAt, challenge.ExpiresAt, challenge.AttemptCount,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// GetChallenge fetches a challenge by id
func (r *MFARepository) GetChallenge(ctx context.Context, challengeID string) (*models.MFAChallenge, error) {
	query := `
		SELECT id, factor_id, code_hash, issued_at, expires_at, attempt_count, consumed_at
		FROM mfa_challenges
		WHERE id = $1
	`

	var challenge models.MFAChallenge
	err := r.db.Pool.QueryRow(ctx, query, challengeID).Scan(
		&challenge.ID, &challenge.FactorID, &challenge.CodeHash,
		&challenge.IssuedAt, &challenge.ExpiresAt, &challenge.AttemptCount,
		&challenge.ConsumedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &challenge, nil
}

// IncrementChallengeAttempts bumps the attempt counter and returns the new value
func (r *MFARepository) IncrementChallengeAttempts(ctx context.Context, challengeID string) (int, error) {
	query := `
		UPDATE mfa_challenges
		SET attempt_count = attempt_count + 1
		WHERE id = $1
		RETURNING attempt_count
	`

	var count int
	err := r.db.Pool.QueryRow(ctx, query, challengeID).Scan(&count)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return count, nil
}

// ConsumeChallenge marks a challenge as used. The conditional update makes
// consumption first-wins under concurrent verification.
func (r *MFARepository) ConsumeChallenge(ctx context.Context, challengeID string, at time.Time) error {
	query := `
		UPDATE mfa_challenges
		SET consumed_at = $2
		WHERE id = $1 AND consumed_at IS NULL
	`

	result, err := r.db.Pool.Exec(ctx, query, challengeID, at)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if result.RowsAffected() == 0 {
		return models.ErrMFAChallengeExpired
	}

	return nil
}

// DeleteExpiredChallenges removes challenges past expiry
func (r *MFARepository) DeleteExpiredChallenges(ctx context.Context) (int64, error) {
	query := `DELETE FROM mfa_challenges WHERE expires_at <= CURRENT_TIMESTAMP`
	result, err := r.db.Pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}
