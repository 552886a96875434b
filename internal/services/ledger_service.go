package services

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/google/uuid"
)

// AttemptLedgerRepository defines the ledger's persistence operations
type AttemptLedgerRepository interface {
	Record(ctx context.Context, attempt *models.AuthAttempt) error
	CountFailures(ctx context.Context, identity string, action models.AuthAction, since time.Time) (int, error)
}

// LedgerConfig holds attempt ledger configuration
type LedgerConfig struct {
	Retention time.Duration // how long rows stay queryable for risk analysis
}

// LedgerService owns the durable record of every authentication attempt.
// Rows are append-only; nothing in the pipeline mutates or deletes them.
type LedgerService struct {
	repo   AttemptLedgerRepository
	config LedgerConfig
	logger *slog.Logger
}

// NewLedgerService creates a new LedgerService
func NewLedgerService(repo AttemptLedgerRepository, config LedgerConfig, logger *slog.Logger) *LedgerService {
	if config.Retention <= 0 {
		config.Retention = 24 * time.Hour
	}
	return &LedgerService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// Record appends one attempt and returns its id. Empty identity or an
// unknown action is rejected before any side effect.
func (s *LedgerService) Record(ctx context.Context, identity string, action models.AuthAction, success bool, failureReason string, meta models.AttemptMetadata) (string, error) {
	if identity == "" {
		return "", fmt.Errorf("%w: identity is required", models.ErrValidation)
	}
	if !action.Valid() {
		return "", fmt.Errorf("%w: unknown action %q", models.ErrValidation, action)
	}

	now := time.Now()
	attempt := &models.AuthAttempt{
		ID:              uuid.NewString(),
		Identity:        identity,
		Action:          action,
		Success:         success,
		IPAddress:       meta.IPAddress,
		UserAgent:       meta.UserAgent,
		ClientSignature: clientSignature(meta.IPAddress, meta.UserAgent),
		AttemptTime:     now,
		ExpiresAt:       now.Add(s.config.Retention),
	}
	if failureReason != "" {
		attempt.FailureReason = &failureReason
	}

	if err := s.repo.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to record auth attempt",
			slog.String("action", string(action)),
			slog.Any("error", err))
		return "", err
	}

	return attempt.ID, nil
}

// CountFailures returns failed attempts for (identity, action) within the
// trailing window
func (s *LedgerService) CountFailures(ctx context.Context, identity string, action models.AuthAction, window time.Duration) (int, error) {
	if identity == "" {
		return 0, fmt.Errorf("%w: identity is required", models.ErrValidation)
	}
	if !action.Valid() {
		return 0, fmt.Errorf("%w: unknown action %q", models.ErrValidation, action)
	}

	return s.repo.CountFailures(ctx, identity, action, time.Now().Add(-window))
}

// RecordNotify records a notification delivery outcome in the ledger. It
// satisfies the notify dispatcher's fire-and-forget contract, so errors are
// logged and discarded.
func (s *LedgerService) RecordNotify(ctx context.Context, identity string, success bool, reason string) {
	if _, err := s.Record(ctx, identity, models.ActionNotify, success, reason, models.AttemptMetadata{}); err != nil {
		s.logger.Warn("failed to record notification attempt", slog.Any("error", err))
	}
}

// clientSignature hashes IP + User-Agent into a stable device identifier
func clientSignature(ipAddress, userAgent string) string {
	data := []byte(fmt.Sprintf("%s:%s", ipAddress, userAgent))
	hash := sha256.Sum256(data)
	return fmt.Sprintf("%x", hash)[:32]
}
