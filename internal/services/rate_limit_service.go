package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
)

// RateLimitRepository defines the ledger reads the limiter needs
type RateLimitRepository interface {
	CountFailures(ctx context.Context, identity string, action models.AuthAction, since time.Time) (int, error)
	CountAttempts(ctx context.Context, identity string, action models.AuthAction, since time.Time) (int, error)
	OldestFailureTime(ctx context.Context, identity string, action models.AuthAction, since time.Time) (*time.Time, error)
	OldestAttemptTime(ctx context.Context, identity string, action models.AuthAction, since time.Time) (*time.Time, error)
}

// RateLimitConfig holds per-action thresholds over a shared sliding window
type RateLimitConfig struct {
	MaxAttempts map[models.AuthAction]int
	Window      time.Duration
}

// DefaultRateLimitConfig returns the default thresholds
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxAttempts: map[models.AuthAction]int{
			models.ActionLogin:    5,
			models.ActionRegister: 3,
			models.ActionReset:    3,
			models.ActionNotify:   10,
		},
		Window: 1 * time.Hour,
	}
}

// Decision is the limiter's verdict for one attempt.
type Decision struct {
	Allowed    bool
	RetryAfter time.Duration
}

// RateLimitService is a sliding-window decision function over the attempt
// ledger. It is advisory-grade: counts are eventually consistent and a
// narrow race past the threshold under heavy concurrency is acceptable.
type RateLimitService struct {
	repo   RateLimitRepository
	config RateLimitConfig
	logger *slog.Logger
}

// NewRateLimitService creates a new RateLimitService
func NewRateLimitService(repo RateLimitRepository, config RateLimitConfig, logger *slog.Logger) *RateLimitService {
	if config.Window <= 0 {
		config.Window = 1 * time.Hour
	}
	return &RateLimitService{
		repo:   repo,
		config: config,
		logger: logger,
	}
}

// consumesEveryAttempt reports whether every recorded attempt for the action
// consumes window budget. Login and register throttle on failures only, so
// legitimate use is never throttled; resets and notifications have no failure
// signal from the caller, the request itself is the cost.
func consumesEveryAttempt(action models.AuthAction) bool {
	switch action {
	case models.ActionReset, models.ActionNotify:
		return true
	}
	return false
}

// CheckLimit decides whether an attempt for (identity, action) may proceed.
// Counts attempts strictly newer than now-window; an attempt exactly one
// window old is not counted. On a storage error the limiter fails open:
// availability of the login path takes priority over throttling precision
// during an infrastructure fault.
func (s *RateLimitService) CheckLimit(ctx context.Context, identity string, action models.AuthAction) Decision {
	max, ok := s.config.MaxAttempts[action]
	if !ok || max <= 0 {
		return Decision{Allowed: true}
	}

	now := time.Now()
	since := now.Add(-s.config.Window)

	var count int
	var err error
	if consumesEveryAttempt(action) {
		count, err = s.repo.CountAttempts(ctx, identity, action, since)
	} else {
		count, err = s.repo.CountFailures(ctx, identity, action, since)
	}
	if err != nil {
		s.logger.Warn("rate limit check failed, failing open",
			slog.String("action", string(action)),
			slog.Any("error", err))
		return Decision{Allowed: true}
	}

	if count >= max {
		retryAfter := s.config.Window
		var oldest *time.Time
		if consumesEveryAttempt(action) {
			oldest, err = s.repo.OldestAttemptTime(ctx, identity, action, since)
		} else {
			oldest, err = s.repo.OldestFailureTime(ctx, identity, action, since)
		}
		if err != nil {
			s.logger.Warn("failed to derive retry-after", slog.Any("error", err))
		} else if oldest != nil {
			// The oldest counted attempt ages out of the window first.
			if r := oldest.Add(s.config.Window).Sub(now); r > 0 {
				retryAfter = r
			}
		}

		s.logger.Warn("attempt rate limited",
			slog.String("action", string(action)),
			slog.Int("counted_attempts", count),
			slog.Duration("retry_after", retryAfter))
		return Decision{Allowed: false, RetryAfter: retryAfter}
	}

	return Decision{Allowed: true}
}

// AllowNotify applies the limiter to the notification action key, unifying
// notification throttling with the authentication limiter.
func (s *RateLimitService) AllowNotify(ctx context.Context, identity string) bool {
	return s.CheckLimit(ctx, identity, models.ActionNotify).Allowed
}
