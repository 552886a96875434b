package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/mfa"
	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/internal/notify"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// MFARepository defines factor and challenge persistence operations
type MFARepository interface {
	CreateFactor(ctx context.Context, factor *models.MFAFactor) error
	GetFactor(ctx context.Context, factorID string) (*models.MFAFactor, error)
	GetActiveFactor(ctx context.Context, userID string, typ models.FactorType) (*models.MFAFactor, error)
	ListActiveFactors(ctx context.Context, userID string) ([]*models.MFAFactor, error)
	UpdateFactorStatus(ctx context.Context, factorID string, status models.FactorStatus, activatedAt *time.Time) error
	CreateChallenge(ctx context.Context, challenge *models.MFAChallenge) error
	GetChallenge(ctx context.Context, challengeID string) (*models.MFAChallenge, error)
	IncrementChallengeAttempts(ctx context.Context, challengeID string) (int, error)
	ConsumeChallenge(ctx context.Context, challengeID string, at time.Time) error
}

// Notifier queues outbound notifications, fire-and-forget.
type Notifier interface {
	Enqueue(msg notify.Message)
}

// MFAServiceConfig holds MFA lifecycle tunables
type MFAServiceConfig struct {
	ChallengeTTL         time.Duration
	MaxChallengeAttempts int
	CodeDigits           int
}

// DefaultMFAServiceConfig returns the default MFA configuration
func DefaultMFAServiceConfig() MFAServiceConfig {
	return MFAServiceConfig{
		ChallengeTTL:         5 * time.Minute,
		MaxChallengeAttempts: 5,
		CodeDigits:           6,
	}
}

// MFAService owns factor enrollment and challenge state. Challenge
// verification is serialized per challenge id so that a captured code cannot
// be replay-verified twice concurrently.
type MFAService struct {
	repo     MFARepository
	totp     *mfa.TOTPManager
	audit    *AuditService
	notifier Notifier
	config   MFAServiceConfig
	logger   *slog.Logger

	mu             sync.Mutex
	challengeLocks map[string]*sync.Mutex
}

// NewMFAService creates a new MFAService
func NewMFAService(repo MFARepository, totp *mfa.TOTPManager, audit *AuditService, notifier Notifier, config MFAServiceConfig, logger *slog.Logger) *MFAService {
	if config.ChallengeTTL <= 0 {
		config.ChallengeTTL = 5 * time.Minute
	}
	if config.MaxChallengeAttempts <= 0 {
		config.MaxChallengeAttempts = 5
	}
	if config.CodeDigits <= 0 {
		config.CodeDigits = 6
	}
	return &MFAService{
		repo:           repo,
		totp:           totp,
		audit:          audit,
		notifier:       notifier,
		config:         config,
		logger:         logger,
		challengeLocks: make(map[string]*sync.Mutex),
	}
}

func (s *MFAService) challengeLock(challengeID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.challengeLocks[challengeID]
	if !ok {
		lock = &sync.Mutex{}
		s.challengeLocks[challengeID] = lock
	}
	return lock
}

// Enroll creates a factor in pending_verification and returns the setup
// material shown once to the caller. For totp factors, destination is the
// account label embedded in the provisioning URL; for sms it is the phone
// number codes will be delivered to. Enrollment is rejected while an active
// factor of the same type exists.
func (s *MFAService) Enroll(ctx context.Context, userID string, typ models.FactorType, destination string) (*models.MFASetupInfo, error) {
	if userID == "" {
		return nil, models.ErrValidation
	}
	if !typ.Valid() {
		return nil, models.ErrValidation
	}

	if _, err := s.repo.GetActiveFactor(ctx, userID, typ); err == nil {
		return nil, models.ErrConflict
	} else if !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to check existing factor", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	factor := &models.MFAFactor{
		ID:          uuid.NewString(),
		UserID:      userID,
		Type:        typ,
		Status:      models.FactorPendingVerification,
		Destination: destination,
		CreatedAt:   time.Now(),
	}

	setup := &models.MFASetupInfo{
		FactorID: factor.ID,
		Type:     string(typ),
	}

	if typ == models.FactorTOTP {
		encrypted, nonce, secret, otpauthURL, qrDataURL, err := s.totp.GenerateEnrollment(destination)
		if err != nil {
			s.logger.Error("failed to generate TOTP enrollment", slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		factor.SecretEncrypted = encrypted
		factor.SecretNonce = nonce
		setup.Secret = secret
		setup.OTPAuthURL = otpauthURL
		setup.QRCode = qrDataURL
	}

	if err := s.repo.CreateFactor(ctx, factor); err != nil {
		s.logger.Error("failed to create MFA factor", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	s.audit.Append(ctx, models.EventMFAEnrollment, userID, models.SeverityInfo, models.AuditDetail{
		"factor_id": factor.ID,
		"type":      string(typ),
	})

	return setup, nil
}

// Challenge issues a new single-use challenge for a factor. For sms factors
// the code is hashed at rest and dispatched through the notifier.
func (s *MFAService) Challenge(ctx context.Context, factorID string) (string, error) {
	factor, err := s.repo.GetFactor(ctx, factorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrMFAFactorNotFound
		}
		return "", models.ErrInternalServer
	}

	if factor.Status == models.FactorDisabled {
		return "", models.ErrMFAFactorDisabled
	}

	now := time.Now()
	challenge := &models.MFAChallenge{
		ID:        uuid.NewString(),
		FactorID:  factor.ID,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.config.ChallengeTTL),
	}

	if factor.Type == models.FactorSMS {
		code, err := mfa.GenerateNumericCode(s.config.CodeDigits)
		if err != nil {
			s.logger.Error("failed to generate challenge code", slog.Any("error", err))
			return "", models.ErrInternalServer
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
		if err != nil {
			s.logger.Error("failed to hash challenge code", slog.Any("error", err))
			return "", models.ErrInternalServer
		}
		challenge.CodeHash = string(hash)

		if s.notifier != nil {
			s.notifier.Enqueue(notify.Message{
				UserID:    factor.UserID,
				Identity:  factor.Destination,
				EventType: "mfa_code",
				Detail:    map[string]string{"code": code},
			})
		}
	}

	if err := s.repo.CreateChallenge(ctx, challenge); err != nil {
		s.logger.Error("failed to create MFA challenge", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	return challenge.ID, nil
}

// Verify checks a code against a challenge. Success consumes the challenge;
// a consumed, expired, or attempt-exhausted challenge is never verifiable
// again. Activates pending factors on their first successful challenge.
func (s *MFAService) Verify(ctx context.Context, factorID, challengeID, code string) error {
	lock := s.challengeLock(challengeID)
	lock.Lock()
	defer lock.Unlock()

	challenge, err := s.repo.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMFAChallengeExpired
		}
		return models.ErrInternalServer
	}

	if challenge.FactorID != factorID || challenge.Consumed() {
		return models.ErrMFAChallengeExpired
	}

	factor, err := s.repo.GetFactor(ctx, factorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMFAFactorNotFound
		}
		return models.ErrInternalServer
	}

	now := time.Now()
	if challenge.Expired(now) {
		s.audit.Append(ctx, models.EventMFAChallengeFailure, factor.UserID, models.SeveritySecurity, models.AuditDetail{
			"factor_id":    factorID,
			"challenge_id": challengeID,
			"reason":       "expired",
		})
		return models.ErrMFAChallengeExpired
	}

	if challenge.AttemptCount >= s.config.MaxChallengeAttempts {
		return models.ErrMFAChallengeExpired
	}

	valid, err := s.checkCode(factor, challenge, code)
	if err != nil {
		s.logger.Error("challenge code check failed", slog.Any("error", err))
		return models.ErrInternalServer
	}

	if !valid {
		attempts, err := s.repo.IncrementChallengeAttempts(ctx, challengeID)
		if err != nil {
			s.logger.Error("failed to increment challenge attempts", slog.Any("error", err))
		}
		s.audit.Append(ctx, models.EventMFAChallengeFailure, factor.UserID, models.SeverityWarning, models.AuditDetail{
			"factor_id":    factorID,
			"challenge_id": challengeID,
			"reason":       "invalid_code",
			"attempts":     attempts,
		})
		return models.ErrMFAInvalidCode
	}

	// First verification consumes the challenge; a concurrent replay of the
	// same code loses this conditional update.
	if err := s.repo.ConsumeChallenge(ctx, challengeID, now); err != nil {
		return models.ErrMFAChallengeExpired
	}

	if factor.Status == models.FactorPendingVerification {
		if err := s.activate(ctx, factor, now); err != nil {
			return err
		}
	}

	s.audit.Append(ctx, models.EventMFAChallengeSuccess, factor.UserID, models.SeverityInfo, models.AuditDetail{
		"factor_id": factorID,
	})

	return nil
}

// Disable removes a factor from service. Allowed from pending_verification
// or active.
func (s *MFAService) Disable(ctx context.Context, factorID string) error {
	factor, err := s.repo.GetFactor(ctx, factorID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrMFAFactorNotFound
		}
		return models.ErrInternalServer
	}

	if factor.Status == models.FactorDisabled {
		return nil
	}

	if err := s.repo.UpdateFactorStatus(ctx, factorID, models.FactorDisabled, nil); err != nil {
		s.logger.Error("failed to disable MFA factor", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Append(ctx, models.EventMFADisabled, factor.UserID, models.SeveritySecurity, models.AuditDetail{
		"factor_id": factorID,
		"type":      string(factor.Type),
	})

	return nil
}

// ActiveFactors lists the active factors for a user
func (s *MFAService) ActiveFactors(ctx context.Context, userID string) ([]*models.MFAFactor, error) {
	return s.repo.ListActiveFactors(ctx, userID)
}

func (s *MFAService) checkCode(factor *models.MFAFactor, challenge *models.MFAChallenge, code string) (bool, error) {
	switch factor.Type {
	case models.FactorTOTP:
		secret, err := s.totp.DecryptSecret(factor.SecretEncrypted, factor.SecretNonce)
		if err != nil {
			return false, err
		}
		return s.totp.ValidateCode(string(secret), code)
	case models.FactorSMS:
		err := bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code))
		return err == nil, nil
	}
	return false, nil
}

// activate enforces the single-active-factor-per-type invariant at the only
// transition that can create a second active factor.
func (s *MFAService) activate(ctx context.Context, factor *models.MFAFactor, now time.Time) error {
	existing, err := s.repo.GetActiveFactor(ctx, factor.UserID, factor.Type)
	if err == nil && existing.ID != factor.ID {
		return models.ErrConflict
	}
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return models.ErrInternalServer
	}

	if err := s.repo.UpdateFactorStatus(ctx, factor.ID, models.FactorActive, &now); err != nil {
		s.logger.Error("failed to activate MFA factor", slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.audit.Append(ctx, models.EventMFAEnabled, factor.UserID, models.SeveritySecurity, models.AuditDetail{
		"factor_id": factor.ID,
		"type":      string(factor.Type),
	})

	return nil
}
