package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/models"
)

// RiskAttemptRepository defines the ledger reads risk analysis needs
type RiskAttemptRepository interface {
	CountFailures(ctx context.Context, identity string, action models.AuthAction, since time.Time) (int, error)
	DistinctSuccessOrigins(ctx context.Context, identity string, since time.Time) ([]string, error)
}

// DefaultRiskWindow is the trailing window risk analysis looks at.
const DefaultRiskWindow = 24 * time.Hour

// RiskService computes a risk assessment from the attempt ledger and audit
// log. Assessments are derived on demand and never persisted as account
// status. The analysis step self-reports: a suspicious result appends a
// suspicious_activity audit entry.
type RiskService struct {
	attempts RiskAttemptRepository
	audit    *AuditService
	logger   *slog.Logger
}

// NewRiskService creates a new RiskService
func NewRiskService(attempts RiskAttemptRepository, audit *AuditService, logger *slog.Logger) *RiskService {
	return &RiskService{
		attempts: attempts,
		audit:    audit,
		logger:   logger,
	}
}

// Analyze computes the risk assessment for an identity over the window.
// Scoring is additive: more failures never lower the score.
func (s *RiskService) Analyze(ctx context.Context, identity string, window time.Duration) (*models.RiskAssessment, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", models.ErrValidation)
	}
	if window <= 0 {
		window = DefaultRiskWindow
	}

	now := time.Now()
	since := now.Add(-window)

	score := 0
	suspicious := false
	factors := make([]models.RiskFactor, 0)

	failures, err := s.attempts.CountFailures(ctx, identity, models.ActionLogin, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count login failures: %w", err)
	}
	switch {
	case failures >= 5:
		score += 2
		suspicious = true
		factors = append(factors, models.RiskFactor{Reason: "repeated login failures", Weight: 2})
	case failures >= 3:
		score += 1
		factors = append(factors, models.RiskFactor{Reason: "repeated login failures", Weight: 1})
	}

	origins, err := s.attempts.DistinctSuccessOrigins(ctx, identity, since)
	if err != nil {
		return nil, fmt.Errorf("failed to collect login origins: %w", err)
	}
	switch {
	case len(origins) >= 3:
		score += 2
		suspicious = true
		factors = append(factors, models.RiskFactor{Reason: "multiple login origins", Weight: 2})
	case len(origins) == 2:
		score += 1
		factors = append(factors, models.RiskFactor{Reason: "multiple login origins", Weight: 1})
	}

	if s.hasEvent(ctx, identity, models.EventUnusualLocation, window) {
		score += 2
		suspicious = true
		factors = append(factors, models.RiskFactor{Reason: "unusual location", Weight: 2})
	}

	if s.hasEvent(ctx, identity, models.EventBruteForceDetected, window) {
		score += 3
		suspicious = true
		factors = append(factors, models.RiskFactor{Reason: "brute force detected", Weight: 3})
	}

	assessment := &models.RiskAssessment{
		Identity:   identity,
		Score:      score,
		Level:      models.RiskLevelForScore(score),
		Factors:    factors,
		Suspicious: suspicious,
		Origins:    origins,
		ComputedAt: now,
	}

	if suspicious {
		s.audit.Append(ctx, models.EventSuspiciousActivity, identity, models.SeveritySecurity, models.AuditDetail{
			"risk_score": score,
			"risk_level": string(assessment.Level),
			"factors":    factors,
			"origins":    origins,
		})
	}

	return assessment, nil
}

// hasEvent degrades gracefully: an audit read failure weakens the assessment
// instead of failing the diagnostic endpoint.
func (s *RiskService) hasEvent(ctx context.Context, identity string, eventType models.EventType, window time.Duration) bool {
	present, err := s.audit.HasEventSince(ctx, identity, eventType, window)
	if err != nil {
		s.logger.Warn("audit event lookup failed during risk analysis",
			slog.String("event_type", string(eventType)),
			slog.Any("error", err))
		return false
	}
	return present
}
