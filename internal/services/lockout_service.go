package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
)

// LockStateRepository defines the lock state persistence operations
type LockStateRepository interface {
	Get(ctx context.Context, userID string) (*models.AccountLockState, error)
	Upsert(ctx context.Context, state *models.AccountLockState) error
}

// LockoutConfig holds lockout thresholds
type LockoutConfig struct {
	Threshold    int
	LockDuration time.Duration
}

// DefaultLockoutConfig returns the default lockout configuration
func DefaultLockoutConfig() LockoutConfig {
	return LockoutConfig{
		Threshold:    5,
		LockDuration: 15 * time.Minute,
	}
}

// LockoutService owns per-account lock state. All transitions for a single
// user id are serialized through a per-key mutex: concurrent threshold
// evaluation must not double-lock or race a manual unlock.
type LockoutService struct {
	repo   LockStateRepository
	audit  *AuditService
	config LockoutConfig
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewLockoutService creates a new LockoutService
func NewLockoutService(repo LockStateRepository, audit *AuditService, config LockoutConfig, logger *slog.Logger) *LockoutService {
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.LockDuration <= 0 {
		config.LockDuration = 15 * time.Minute
	}
	return &LockoutService{
		repo:   repo,
		audit:  audit,
		config: config,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

func (s *LockoutService) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userID] = lock
	}
	return lock
}

// Check returns the current lock state for a user, clearing an expired lock
// lazily. There is no background sweep: a lock whose expiry has passed is
// treated as unlocked at the next attempt, and the transition is audited.
func (s *LockoutService) Check(ctx context.Context, userID string) (*models.AccountLockState, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.getOrZero(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if state.LockExpired(now) {
		state.Locked = false
		state.LockedUntil = nil
		state.FailedAttemptCount = 0
		state.UpdatedAt = now

		if err := s.repo.Upsert(ctx, state); err != nil {
			return nil, err
		}

		s.audit.Append(ctx, models.EventAccountUnlocked, userID, models.SeveritySecurity, models.AuditDetail{
			"mode": "automatic",
		})
		s.logger.Info("expired account lock cleared", slog.String("user_id", userID))
	}

	return state, nil
}

// RegisterFailure counts one failed login toward the lockout threshold and
// locks the account when the threshold is reached. Returns the updated state.
func (s *LockoutService) RegisterFailure(ctx context.Context, userID string) (*models.AccountLockState, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.getOrZero(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	if state.Locked && !state.LockExpired(now) {
		// Already locked; nothing to transition.
		return state, nil
	}

	state.FailedAttemptCount++
	state.UpdatedAt = now

	if state.FailedAttemptCount >= s.config.Threshold {
		until := now.Add(s.config.LockDuration)
		state.Locked = true
		state.LockedUntil = &until

		s.audit.Append(ctx, models.EventAccountLocked, userID, models.SeveritySecurity, models.AuditDetail{
			"failed_attempts": state.FailedAttemptCount,
			"locked_until":    until.UTC().Format(time.RFC3339),
		})
		s.logger.Warn("account locked after repeated failures",
			slog.String("user_id", userID),
			slog.Int("failed_attempts", state.FailedAttemptCount))
	}

	if err := s.repo.Upsert(ctx, state); err != nil {
		return nil, err
	}

	return state, nil
}

// RegisterSuccess resets the consecutive-failure counter after a successful
// authentication.
func (s *LockoutService) RegisterSuccess(ctx context.Context, userID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil
		}
		return err
	}

	if state.FailedAttemptCount == 0 && !state.Locked {
		return nil
	}

	state.FailedAttemptCount = 0
	state.UpdatedAt = time.Now()

	return s.repo.Upsert(ctx, state)
}

// AdminUnlock clears a lock on explicit administrative action, resetting the
// failure counter to zero.
func (s *LockoutService) AdminUnlock(ctx context.Context, userID string) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	state, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}

	state.Locked = false
	state.LockedUntil = nil
	state.FailedAttemptCount = 0
	state.UpdatedAt = time.Now()

	if err := s.repo.Upsert(ctx, state); err != nil {
		return err
	}

	s.audit.Append(ctx, models.EventAccountUnlocked, userID, models.SeveritySecurity, models.AuditDetail{
		"mode": "manual",
	})
	s.logger.Info("account unlocked by administrator", slog.String("user_id", userID))

	return nil
}

func (s *LockoutService) getOrZero(ctx context.Context, userID string) (*models.AccountLockState, error) {
	state, err := s.repo.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return &models.AccountLockState{UserID: userID, UpdatedAt: time.Now()}, nil
		}
		return nil, err
	}
	return state, nil
}
