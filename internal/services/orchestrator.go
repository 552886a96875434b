package services

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"time"
	"unicode"

	"github.com/Ray-dawg/Myralight-sub002/internal/mfa"
	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/internal/notify"
	"github.com/Ray-dawg/Myralight-sub002/internal/repositories"
)

// CredentialCheck is the verifier's verdict for one credential pair.
type CredentialCheck struct {
	Valid  bool
	UserID string
}

// CredentialVerifier checks a credential pair against the identity store.
// A non-nil error means the verifier itself failed (store unreachable,
// timeout), not that the credentials were wrong.
type CredentialVerifier interface {
	VerifyCredentials(ctx context.Context, identity, secret string) (*CredentialCheck, error)
}

// AccountDirectory creates accounts in the identity store.
type AccountDirectory interface {
	CreateAccount(ctx context.Context, identity, secret string, role models.Role) (string, error)
}

// OrchestratorConfig holds credential orchestration tunables
type OrchestratorConfig struct {
	VerifyTimeout time.Duration
}

// Orchestrator sequences every security control around credential
// verification: rate limit, lockout, attempt recording, audit, risk
// bookkeeping and MFA escalation. Handlers call the orchestrator; they never
// reach the verifier or the individual controls directly.
type Orchestrator struct {
	verifier  CredentialVerifier
	directory AccountDirectory
	ledger    *LedgerService
	limiter   *RateLimitService
	lockout   *LockoutService
	audit     *AuditService
	mfaSvc    *MFAService
	tokens    *mfa.TokenManager
	notifier  Notifier
	config    OrchestratorConfig
	logger    *slog.Logger
}

// NewOrchestrator creates a new Orchestrator
func NewOrchestrator(
	verifier CredentialVerifier,
	directory AccountDirectory,
	ledger *LedgerService,
	limiter *RateLimitService,
	lockout *LockoutService,
	audit *AuditService,
	mfaSvc *MFAService,
	tokens *mfa.TokenManager,
	notifier Notifier,
	config OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if config.VerifyTimeout <= 0 {
		config.VerifyTimeout = 5 * time.Second
	}
	return &Orchestrator{
		verifier:  verifier,
		directory: directory,
		ledger:    ledger,
		limiter:   limiter,
		lockout:   lockout,
		audit:     audit,
		mfaSvc:    mfaSvc,
		tokens:    tokens,
		notifier:  notifier,
		config:    config,
		logger:    logger,
	}
}

// AttemptLogin runs the full login pipeline for one credential pair.
// Control order: validate, rate limit, lockout, verify, record, escalate.
// Infrastructure faults surface as LoginSystemError and are never recorded
// as failed attempts against the identity.
func (s *Orchestrator) AttemptLogin(ctx context.Context, identity, secret string, meta models.AttemptMetadata) (result *models.LoginResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during login attempt", slog.Any("panic", r))
			s.audit.Append(ctx, models.EventSystemError, identity, models.SeverityError, models.AuditDetail{
				"operation": "login",
			})
			result = &models.LoginResult{Status: models.LoginSystemError, Message: models.GenericAuthMessage}
		}
	}()

	if identity == "" || secret == "" {
		return &models.LoginResult{Status: models.LoginInvalidCredentials, Message: models.GenericAuthMessage}
	}

	if decision := s.limiter.CheckLimit(ctx, identity, models.ActionLogin); !decision.Allowed {
		s.audit.Append(ctx, models.EventRateLimitBreach, identity, models.SeveritySecurity, models.AuditDetail{
			"action":      string(models.ActionLogin),
			"retry_after": decision.RetryAfter.String(),
			"ip_address":  meta.IPAddress,
		})
		return &models.LoginResult{
			Status:     models.LoginRateLimited,
			RetryAfter: decision.RetryAfter,
			Message:    models.GenericAuthMessage,
		}
	}

	lockState, err := s.lockout.Check(ctx, identity)
	if err != nil {
		s.logger.Error("lockout check failed", slog.Any("error", err))
		return &models.LoginResult{Status: models.LoginSystemError, Message: models.GenericAuthMessage}
	}
	now := time.Now()
	if lockState.Locked && !lockState.LockExpired(now) {
		s.audit.Append(ctx, models.EventAccessDenied, identity, models.SeveritySecurity, models.AuditDetail{
			"reason":     "account_locked",
			"ip_address": meta.IPAddress,
		})
		return &models.LoginResult{
			Status:     models.LoginAccountLocked,
			RetryAfter: lockState.Remaining(now),
			Message:    models.GenericAuthMessage,
		}
	}

	verifyCtx, cancel := context.WithTimeout(ctx, s.config.VerifyTimeout)
	defer cancel()

	check, err := s.verifier.VerifyCredentials(verifyCtx, identity, secret)
	if err != nil {
		// A verifier fault is not evidence about the credentials, so it must
		// not count toward throttling or lockout.
		s.logger.Error("credential verification failed", slog.Any("error", err))
		s.audit.Append(ctx, models.EventSystemError, identity, models.SeverityError, models.AuditDetail{
			"operation": "credential_verification",
		})
		return &models.LoginResult{Status: models.LoginSystemError, Message: models.GenericAuthMessage}
	}

	if !check.Valid {
		return s.recordLoginFailure(ctx, identity, meta)
	}

	return s.recordLoginSuccess(ctx, identity, check.UserID, meta)
}

func (s *Orchestrator) recordLoginFailure(ctx context.Context, identity string, meta models.AttemptMetadata) *models.LoginResult {
	if _, err := s.ledger.Record(ctx, identity, models.ActionLogin, false, "invalid_credentials", meta); err != nil {
		s.logger.Error("failed to record login failure", slog.Any("error", err))
	}

	s.audit.Append(ctx, models.EventLoginFailure, identity, models.SeverityWarning, models.AuditDetail{
		"ip_address": meta.IPAddress,
	})

	if _, err := s.lockout.RegisterFailure(ctx, identity); err != nil {
		s.logger.Error("failed to register lockout failure", slog.Any("error", err))
	}

	return &models.LoginResult{Status: models.LoginInvalidCredentials, Message: models.GenericAuthMessage}
}

func (s *Orchestrator) recordLoginSuccess(ctx context.Context, identity, userID string, meta models.AttemptMetadata) *models.LoginResult {
	if _, err := s.ledger.Record(ctx, identity, models.ActionLogin, true, "", meta); err != nil {
		s.logger.Error("failed to record login success", slog.Any("error", err))
	}

	s.audit.Append(ctx, models.EventLoginSuccess, identity, models.SeverityInfo, models.AuditDetail{
		"user_id":    userID,
		"ip_address": meta.IPAddress,
	})

	if err := s.lockout.RegisterSuccess(ctx, identity); err != nil {
		s.logger.Error("failed to reset lockout counter", slog.Any("error", err))
	}

	factors, err := s.mfaSvc.ActiveFactors(ctx, userID)
	if err != nil {
		s.logger.Error("failed to list MFA factors", slog.Any("error", err))
		return &models.LoginResult{Status: models.LoginSystemError, Message: models.GenericAuthMessage}
	}

	if len(factors) == 0 {
		return &models.LoginResult{Status: models.LoginSuccess, UserID: userID}
	}

	// Password success alone is not a session when MFA is enabled: issue a
	// short-lived pending token bound to the challenge.
	factor := factors[0]
	challengeID, err := s.mfaSvc.Challenge(ctx, factor.ID)
	if err != nil {
		s.logger.Error("failed to issue MFA challenge", slog.Any("error", err))
		return &models.LoginResult{Status: models.LoginSystemError, Message: models.GenericAuthMessage}
	}

	token, err := s.tokens.Issue(userID, factor.ID)
	if err != nil {
		s.logger.Error("failed to issue MFA pending token", slog.Any("error", err))
		return &models.LoginResult{Status: models.LoginSystemError, Message: models.GenericAuthMessage}
	}

	return &models.LoginResult{
		Status:      models.LoginMFARequired,
		FactorID:    factor.ID,
		ChallengeID: challengeID,
		MFAToken:    token,
	}
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// AttemptRegister runs the registration pipeline. Input validation happens
// before any side effect and records nothing; only attempts that reach the
// identity store are recorded, whether or not an account already exists.
func (s *Orchestrator) AttemptRegister(ctx context.Context, identity, secret string, role models.Role, meta models.AttemptMetadata) (result *models.RegisterResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during registration", slog.Any("panic", r))
			s.audit.Append(ctx, models.EventSystemError, identity, models.SeverityError, models.AuditDetail{
				"operation": "register",
			})
			result = &models.RegisterResult{Status: models.RegisterSystemError}
		}
	}()

	if reason := validateRegistration(identity, secret, role); reason != "" {
		return &models.RegisterResult{Status: models.RegisterInvalidInput, Reason: reason}
	}

	if decision := s.limiter.CheckLimit(ctx, identity, models.ActionRegister); !decision.Allowed {
		s.audit.Append(ctx, models.EventRateLimitBreach, identity, models.SeveritySecurity, models.AuditDetail{
			"action":      string(models.ActionRegister),
			"retry_after": decision.RetryAfter.String(),
			"ip_address":  meta.IPAddress,
		})
		return &models.RegisterResult{Status: models.RegisterRateLimited, RetryAfter: decision.RetryAfter}
	}

	userID, err := s.directory.CreateAccount(ctx, identity, secret, role)
	if err != nil {
		if errors.Is(err, models.ErrConflict) {
			if _, rerr := s.ledger.Record(ctx, identity, models.ActionRegister, false, "already_exists", meta); rerr != nil {
				s.logger.Error("failed to record registration failure", slog.Any("error", rerr))
			}
			s.audit.Append(ctx, models.EventRegisterFailure, identity, models.SeverityWarning, models.AuditDetail{
				"reason":     "already_exists",
				"ip_address": meta.IPAddress,
			})
			return &models.RegisterResult{Status: models.RegisterAlreadyExists}
		}

		s.logger.Error("account creation failed", slog.Any("error", err))
		s.audit.Append(ctx, models.EventSystemError, identity, models.SeverityError, models.AuditDetail{
			"operation": "account_creation",
		})
		return &models.RegisterResult{Status: models.RegisterSystemError}
	}

	if _, err := s.ledger.Record(ctx, identity, models.ActionRegister, true, "", meta); err != nil {
		s.logger.Error("failed to record registration", slog.Any("error", err))
	}
	s.audit.Append(ctx, models.EventRegisterSuccess, identity, models.SeverityInfo, models.AuditDetail{
		"user_id":    userID,
		"role":       string(role),
		"ip_address": meta.IPAddress,
	})

	return &models.RegisterResult{Status: models.RegisterSuccessful, UserID: userID}
}

// RequestPasswordReset throttles and records reset requests. The response is
// identical whether or not the identity exists; only the audit trail and the
// notification queue know the difference.
func (s *Orchestrator) RequestPasswordReset(ctx context.Context, identity string, meta models.AttemptMetadata) *models.ResetResult {
	if identity == "" {
		return &models.ResetResult{Status: models.ResetSent}
	}

	if decision := s.limiter.CheckLimit(ctx, identity, models.ActionReset); !decision.Allowed {
		s.audit.Append(ctx, models.EventRateLimitBreach, identity, models.SeveritySecurity, models.AuditDetail{
			"action":      string(models.ActionReset),
			"retry_after": decision.RetryAfter.String(),
			"ip_address":  meta.IPAddress,
		})
		return &models.ResetResult{Status: models.ResetRateLimited, RetryAfter: decision.RetryAfter}
	}

	if _, err := s.ledger.Record(ctx, identity, models.ActionReset, true, "", meta); err != nil {
		s.logger.Error("failed to record reset request", slog.Any("error", err))
	}

	s.audit.Append(ctx, models.EventAccountRecovery, identity, models.SeveritySecurity, models.AuditDetail{
		"ip_address": meta.IPAddress,
	})

	if s.notifier != nil {
		s.notifier.Enqueue(notify.Message{
			Identity:  identity,
			EventType: "password_reset",
		})
	}

	return &models.ResetResult{Status: models.ResetSent}
}

// VerifyMFAChallenge completes a login that escalated to MFA. The pending
// token binds the verification to the factor the challenge was issued for.
func (s *Orchestrator) VerifyMFAChallenge(ctx context.Context, token, challengeID, code string) (*models.MFAVerifyResult, error) {
	claims, err := s.tokens.Validate(token)
	if err != nil {
		return nil, models.ErrInvalidCredentials
	}

	err = s.mfaSvc.Verify(ctx, claims.FactorID, challengeID, code)
	switch {
	case err == nil:
		return &models.MFAVerifyResult{Status: models.MFAVerified, UserID: claims.UserID}, nil
	case errors.Is(err, models.ErrMFAInvalidCode):
		return &models.MFAVerifyResult{Status: models.MFAInvalidCode}, nil
	case errors.Is(err, models.ErrMFAChallengeExpired):
		return &models.MFAVerifyResult{Status: models.MFAExpired}, nil
	default:
		return nil, err
	}
}

// EnrollMFA begins factor enrollment for a user. The new factor starts in
// pending_verification, so a verification challenge and its pending token are
// issued with the setup material: completing that challenge through
// VerifyMFAChallenge is what activates the factor.
func (s *Orchestrator) EnrollMFA(ctx context.Context, userID string, typ models.FactorType, destination string) (*models.MFASetupInfo, error) {
	setup, err := s.mfaSvc.Enroll(ctx, userID, typ, destination)
	if err != nil {
		return nil, err
	}

	challengeID, err := s.mfaSvc.Challenge(ctx, setup.FactorID)
	if err != nil {
		s.logger.Error("failed to issue enrollment challenge", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, err := s.tokens.Issue(userID, setup.FactorID)
	if err != nil {
		s.logger.Error("failed to issue enrollment pending token", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	setup.ChallengeID = challengeID
	setup.MFAToken = token
	return setup, nil
}

// DisableMFA disables a factor
func (s *Orchestrator) DisableMFA(ctx context.Context, factorID string) error {
	return s.mfaSvc.Disable(ctx, factorID)
}

// AdminUnlockAccount clears a lock on administrative action
func (s *Orchestrator) AdminUnlockAccount(ctx context.Context, userID string) error {
	return s.lockout.AdminUnlock(ctx, userID)
}

// GetSecurityActivity returns the audit trail for a subject
func (s *Orchestrator) GetSecurityActivity(ctx context.Context, subject string, opts repositories.QueryOptions) ([]*models.AuditLogEntry, error) {
	return s.audit.Query(ctx, subject, opts)
}

func validateRegistration(identity, secret string, role models.Role) string {
	if !emailPattern.MatchString(identity) {
		return "invalid email address"
	}
	if !role.Valid() {
		return "unknown role"
	}
	if len(secret) < 8 {
		return "password must be at least 8 characters"
	}
	var hasUpper, hasLower, hasDigit bool
	for _, r := range secret {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasUpper || !hasLower || !hasDigit {
		return "password must contain upper and lower case letters and a digit"
	}
	return ""
}
