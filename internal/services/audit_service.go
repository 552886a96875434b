package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/internal/repositories"
	pkglogger "github.com/Ray-dawg/Myralight-sub002/pkg/logger"
	"github.com/google/uuid"
)

// AuditLogRepository defines the audit log persistence operations
type AuditLogRepository interface {
	Append(ctx context.Context, entry *models.AuditLogEntry) error
	Query(ctx context.Context, subject string, opts repositories.QueryOptions) ([]*models.AuditLogEntry, error)
	HasEvent(ctx context.Context, subject string, eventType models.EventType, since time.Time) (bool, error)
}

// AuditService handles security audit logging with a dual-write pattern
// (slog + database). Security-sensitive events are force-promoted to
// security severity before storage.
type AuditService struct {
	repo     AuditLogRepository
	logger   *slog.Logger
	fallback *pkglogger.FallbackAuditLogger
}

// NewAuditService creates a new AuditService
func NewAuditService(repo AuditLogRepository, logger *slog.Logger, fallback *pkglogger.FallbackAuditLogger) *AuditService {
	return &AuditService{
		repo:     repo,
		logger:   logger,
		fallback: fallback,
	}
}

// Append records one audit event. It never fails the caller: on a storage
// error the entry goes to the local fallback log so that a logging outage
// cannot block authentication.
func (s *AuditService) Append(ctx context.Context, eventType models.EventType, subject string, severity models.Severity, detail models.AuditDetail) {
	entry := &models.AuditLogEntry{
		ID:        uuid.New(),
		EventType: eventType,
		Subject:   subject,
		Severity:  models.EffectiveSeverity(eventType, severity),
		Detail:    detail,
		CreatedAt: time.Now(),
	}

	// Dual-write: immediate slog output
	s.logger.LogAttrs(ctx, logLevelFor(entry.Severity), "audit event",
		slog.String("event_type", string(entry.EventType)),
		slog.String("subject", entry.Subject),
		slog.String("severity", string(entry.Severity)),
		slog.Any("detail", entry.Detail),
	)

	if err := s.repo.Append(ctx, entry); err != nil {
		s.logger.ErrorContext(ctx, "failed to persist audit entry",
			slog.String("event_type", string(entry.EventType)),
			slog.Any("error", err),
		)
		s.fallback.Write(pkglogger.FallbackEvent{
			EventType: string(entry.EventType),
			Subject:   entry.Subject,
			Severity:  string(entry.Severity),
			Detail:    entry.Detail,
		})
	}
}

// Query retrieves the audit trail for a subject, newest first
func (s *AuditService) Query(ctx context.Context, subject string, opts repositories.QueryOptions) ([]*models.AuditLogEntry, error) {
	if opts.Limit <= 0 || opts.Limit > 100 {
		opts.Limit = 50
	}

	entries, err := s.repo.Query(ctx, subject, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}

	return entries, nil
}

// HasEventSince reports whether a subject has an event of the given type
// within the trailing window
func (s *AuditService) HasEventSince(ctx context.Context, subject string, eventType models.EventType, window time.Duration) (bool, error) {
	return s.repo.HasEvent(ctx, subject, eventType, time.Now().Add(-window))
}

func logLevelFor(severity models.Severity) slog.Level {
	switch severity {
	case models.SeverityWarning:
		return slog.LevelWarn
	case models.SeverityError, models.SeveritySecurity:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
