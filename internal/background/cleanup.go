package background

import (
	"context"
	"log/slog"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/repositories"
)

// CleanupManager periodically removes expired attempt ledger rows and MFA
// challenges from the database. The ledger itself is append-only; only rows
// past their retention expiry are eligible.
type CleanupManager struct {
	attemptRepo *repositories.AttemptRepository
	mfaRepo     *repositories.MFARepository
	logger      *slog.Logger
	interval    time.Duration
	stopCh      chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(
	attemptRepo *repositories.AttemptRepository,
	mfaRepo *repositories.MFARepository,
	logger *slog.Logger,
	interval time.Duration,
) *CleanupManager {
	return &CleanupManager{
		attemptRepo: attemptRepo,
		mfaRepo:     mfaRepo,
		logger:      logger,
		interval:    interval,
		stopCh:      make(chan struct{}),
	}
}

// Start begins the periodic cleanup task
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	// Run immediately on startup
	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

// runCleanup removes expired rows from the database
func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cm.logger.Info("starting expired row cleanup")

	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	attempts, err := cm.attemptRepo.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired attempts", slog.Any("error", err))
	} else if attempts > 0 {
		cm.logger.Info("expired attempt cleanup completed", slog.Int64("rows_deleted", attempts))
	}

	challenges, err := cm.mfaRepo.DeleteExpiredChallenges(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to cleanup expired challenges", slog.Any("error", err))
	} else if challenges > 0 {
		cm.logger.Info("expired challenge cleanup completed", slog.Int64("rows_deleted", challenges))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
