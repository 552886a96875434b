package services_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Ray-dawg/Myralight-sub002/internal/mfa"
	"github.com/Ray-dawg/Myralight-sub002/internal/models"
	"github.com/Ray-dawg/Myralight-sub002/internal/services"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pipeline struct {
	orchestrator *services.Orchestrator
	verifier     *MockVerifier
	directory    *MockDirectory
	attempts     *MockAttemptRepo
	audit        *MockAuditRepo
	locks        *MockLockRepo
	mfaRepo      *MockMFARepo
	notifier     *MockNotifier
	tokens       *mfa.TokenManager
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	logger := testLogger()

	p := &pipeline{
		verifier:  &MockVerifier{Check: &services.CredentialCheck{Valid: true, UserID: "user-1"}},
		directory: &MockDirectory{UserID: "user-1"},
		attempts:  &MockAttemptRepo{},
		audit:     &MockAuditRepo{},
		locks:     NewMockLockRepo(),
		mfaRepo:   NewMockMFARepo(),
		notifier:  &MockNotifier{},
		tokens:    mfa.NewTokenManager("test-pending-token-secret"),
	}

	auditService := newTestAuditService(p.audit)
	ledger := services.NewLedgerService(p.attempts, services.LedgerConfig{Retention: 24 * time.Hour}, logger)
	limiter := services.NewRateLimitService(p.attempts, services.DefaultRateLimitConfig(), logger)
	lockout := services.NewLockoutService(p.locks, auditService, services.DefaultLockoutConfig(), logger)

	totpManager, err := mfa.NewTOTPManager([]byte(testEncryptionKey), "Myralight")
	require.NoError(t, err)
	mfaService := services.NewMFAService(p.mfaRepo, totpManager, auditService, p.notifier, services.DefaultMFAServiceConfig(), logger)

	p.orchestrator = services.NewOrchestrator(
		p.verifier,
		p.directory,
		ledger,
		limiter,
		lockout,
		auditService,
		mfaService,
		p.tokens,
		p.notifier,
		services.OrchestratorConfig{VerifyTimeout: 2 * time.Second},
		logger,
	)
	return p
}

var testMeta = models.AttemptMetadata{IPAddress: "203.0.113.7", UserAgent: "test-agent"}

func TestOrchestratorLogin_Success(t *testing.T) {
	p := newPipeline(t)

	result := p.orchestrator.AttemptLogin(context.Background(), "driver@example.com", "Passw0rd!", testMeta)

	assert.Equal(t, models.LoginSuccess, result.Status)
	assert.Equal(t, "user-1", result.UserID)

	require.Len(t, p.attempts.Recorded, 1)
	assert.True(t, p.attempts.Recorded[0].Success)
	assert.Equal(t, models.ActionLogin, p.attempts.Recorded[0].Action)
	assert.NotNil(t, p.audit.Find(models.EventLoginSuccess))
}

func TestOrchestratorLogin_InvalidCredentials(t *testing.T) {
	p := newPipeline(t)
	p.verifier.Check = &services.CredentialCheck{Valid: false}

	result := p.orchestrator.AttemptLogin(context.Background(), "driver@example.com", "wrong", testMeta)

	assert.Equal(t, models.LoginInvalidCredentials, result.Status)
	assert.Equal(t, models.GenericAuthMessage, result.Message)

	require.Len(t, p.attempts.Recorded, 1)
	assert.False(t, p.attempts.Recorded[0].Success)
	assert.NotNil(t, p.audit.Find(models.EventLoginFailure))

	state, err := p.locks.Get(context.Background(), "driver@example.com")
	require.NoError(t, err)
	assert.Equal(t, 1, state.FailedAttemptCount)
}

func TestOrchestratorLogin_RateLimitedBeforeVerification(t *testing.T) {
	p := newPipeline(t)
	p.attempts.FailureCount = 5

	result := p.orchestrator.AttemptLogin(context.Background(), "driver@example.com", "Passw0rd!", testMeta)

	assert.Equal(t, models.LoginRateLimited, result.Status)
	assert.Equal(t, models.GenericAuthMessage, result.Message)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.Zero(t, p.verifier.Calls)
	assert.Empty(t, p.attempts.Recorded)
	assert.NotNil(t, p.audit.Find(models.EventRateLimitBreach))
}

func TestOrchestratorLogin_LockedAccountShortCircuits(t *testing.T) {
	p := newPipeline(t)
	until := time.Now().Add(10 * time.Minute)
	p.locks.States["driver@example.com"] = &models.AccountLockState{
		UserID:      "driver@example.com",
		Locked:      true,
		LockedUntil: &until,
		UpdatedAt:   time.Now(),
	}

	result := p.orchestrator.AttemptLogin(context.Background(), "driver@example.com", "Passw0rd!", testMeta)

	assert.Equal(t, models.LoginAccountLocked, result.Status)
	assert.Equal(t, models.GenericAuthMessage, result.Message)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.Zero(t, p.verifier.Calls)
	assert.NotNil(t, p.audit.Find(models.EventAccessDenied))
}

func TestOrchestratorLogin_VerifierFaultIsNotAFailedAttempt(t *testing.T) {
	p := newPipeline(t)
	p.verifier.Err = errors.New("identity store unreachable")

	result := p.orchestrator.AttemptLogin(context.Background(), "driver@example.com", "Passw0rd!", testMeta)

	assert.Equal(t, models.LoginSystemError, result.Status)
	assert.Empty(t, p.attempts.Recorded)
	assert.NotNil(t, p.audit.Find(models.EventSystemError))

	_, err := p.locks.Get(context.Background(), "driver@example.com")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestOrchestratorLogin_MFAEscalation(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	totpManager, err := mfa.NewTOTPManager([]byte(testEncryptionKey), "Myralight")
	require.NoError(t, err)
	encrypted, nonce, secret, _, _, err := totpManager.GenerateEnrollment("driver@example.com")
	require.NoError(t, err)

	p.mfaRepo.Factors["f1"] = &models.MFAFactor{
		ID:              "f1",
		UserID:          "user-1",
		Type:            models.FactorTOTP,
		Status:          models.FactorActive,
		SecretEncrypted: encrypted,
		SecretNonce:     nonce,
	}

	result := p.orchestrator.AttemptLogin(ctx, "driver@example.com", "Passw0rd!", testMeta)

	assert.Equal(t, models.LoginMFARequired, result.Status)
	assert.Empty(t, result.UserID)
	assert.Equal(t, "f1", result.FactorID)
	assert.NotEmpty(t, result.ChallengeID)
	assert.NotEmpty(t, result.MFAToken)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)

	verify, err := p.orchestrator.VerifyMFAChallenge(ctx, result.MFAToken, result.ChallengeID, code)
	require.NoError(t, err)
	assert.Equal(t, models.MFAVerified, verify.Status)
	assert.Equal(t, "user-1", verify.UserID)
}

func TestOrchestratorEnrollMFA_VerificationActivatesFactor(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	setup, err := p.orchestrator.EnrollMFA(ctx, "user-1", models.FactorTOTP, "driver@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.Secret)
	assert.NotEmpty(t, setup.ChallengeID)
	assert.NotEmpty(t, setup.MFAToken)

	// Pending factors do not gate login
	result := p.orchestrator.AttemptLogin(ctx, "driver@example.com", "Passw0rd!", testMeta)
	assert.Equal(t, models.LoginSuccess, result.Status)

	code, err := totp.GenerateCode(setup.Secret, time.Now())
	require.NoError(t, err)

	verify, err := p.orchestrator.VerifyMFAChallenge(ctx, setup.MFAToken, setup.ChallengeID, code)
	require.NoError(t, err)
	assert.Equal(t, models.MFAVerified, verify.Status)
	assert.Equal(t, models.FactorActive, p.mfaRepo.Factors[setup.FactorID].Status)

	// With the factor active, the next login escalates
	result = p.orchestrator.AttemptLogin(ctx, "driver@example.com", "Passw0rd!", testMeta)
	assert.Equal(t, models.LoginMFARequired, result.Status)
	assert.Equal(t, setup.FactorID, result.FactorID)
}

func TestOrchestratorEnrollMFA_SMSCodeDispatchedWithSetup(t *testing.T) {
	p := newPipeline(t)

	setup, err := p.orchestrator.EnrollMFA(context.Background(), "user-1", models.FactorSMS, "+15550100")
	require.NoError(t, err)
	assert.NotEmpty(t, setup.ChallengeID)
	assert.NotEmpty(t, setup.MFAToken)

	require.Len(t, p.notifier.Messages, 1)
	assert.Equal(t, "mfa_code", p.notifier.Messages[0].EventType)
	assert.NotEmpty(t, p.notifier.Messages[0].Detail["code"])
}

func TestOrchestratorVerifyMFAChallenge_BadToken(t *testing.T) {
	p := newPipeline(t)

	_, err := p.orchestrator.VerifyMFAChallenge(context.Background(), "not-a-token", "c1", "000000")
	assert.ErrorIs(t, err, models.ErrInvalidCredentials)
}

func TestOrchestratorRegister_Success(t *testing.T) {
	p := newPipeline(t)

	result := p.orchestrator.AttemptRegister(context.Background(), "carrier@example.com", "Passw0rd!", models.RoleCarrier, testMeta)

	assert.Equal(t, models.RegisterSuccessful, result.Status)
	assert.Equal(t, "user-1", result.UserID)
	require.Len(t, p.attempts.Recorded, 1)
	assert.True(t, p.attempts.Recorded[0].Success)
	assert.NotNil(t, p.audit.Find(models.EventRegisterSuccess))
}

func TestOrchestratorRegister_WeakPasswordRejectedWithoutSideEffects(t *testing.T) {
	p := newPipeline(t)

	cases := []string{"short", "alllowercase1", "ALLUPPERCASE1", "NoDigitsHere"}
	for _, password := range cases {
		result := p.orchestrator.AttemptRegister(context.Background(), "carrier@example.com", password, models.RoleCarrier, testMeta)
		assert.Equal(t, models.RegisterInvalidInput, result.Status, "password %q", password)
	}

	assert.Empty(t, p.attempts.Recorded)
	assert.Empty(t, p.audit.Entries)
}

func TestOrchestratorRegister_BadEmailAndRole(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	result := p.orchestrator.AttemptRegister(ctx, "not-an-email", "Passw0rd!", models.RoleDriver, testMeta)
	assert.Equal(t, models.RegisterInvalidInput, result.Status)

	result = p.orchestrator.AttemptRegister(ctx, "driver@example.com", "Passw0rd!", models.Role("superuser"), testMeta)
	assert.Equal(t, models.RegisterInvalidInput, result.Status)
}

func TestOrchestratorRegister_ExistingAccount(t *testing.T) {
	p := newPipeline(t)
	p.directory.Err = models.ErrConflict

	result := p.orchestrator.AttemptRegister(context.Background(), "carrier@example.com", "Passw0rd!", models.RoleCarrier, testMeta)

	assert.Equal(t, models.RegisterAlreadyExists, result.Status)
	require.Len(t, p.attempts.Recorded, 1)
	assert.False(t, p.attempts.Recorded[0].Success)
	assert.NotNil(t, p.audit.Find(models.EventRegisterFailure))
}

func TestOrchestratorRegister_RateLimited(t *testing.T) {
	p := newPipeline(t)
	p.attempts.FailureCount = 3

	result := p.orchestrator.AttemptRegister(context.Background(), "carrier@example.com", "Passw0rd!", models.RoleCarrier, testMeta)

	assert.Equal(t, models.RegisterRateLimited, result.Status)
	assert.Empty(t, p.attempts.Recorded)
}

func TestOrchestratorPasswordReset_AlwaysSent(t *testing.T) {
	p := newPipeline(t)

	result := p.orchestrator.RequestPasswordReset(context.Background(), "driver@example.com", testMeta)

	assert.Equal(t, models.ResetSent, result.Status)
	require.Len(t, p.notifier.Messages, 1)
	assert.Equal(t, "password_reset", p.notifier.Messages[0].EventType)

	entry := p.audit.Find(models.EventAccountRecovery)
	require.NotNil(t, entry)
	assert.Equal(t, models.SeveritySecurity, entry.Severity)
}

func TestOrchestratorPasswordReset_RateLimited(t *testing.T) {
	p := newPipeline(t)
	p.attempts.AttemptCount = 3

	result := p.orchestrator.RequestPasswordReset(context.Background(), "driver@example.com", testMeta)

	assert.Equal(t, models.ResetRateLimited, result.Status)
	assert.Empty(t, p.notifier.Messages)
}

func TestOrchestratorPasswordReset_RepeatedRequestsConsumeBudget(t *testing.T) {
	p := newPipeline(t)
	ctx := context.Background()

	// Reset requests always report sent, so the budget must be consumed by
	// the requests themselves rather than by failures.
	for i := 0; i < 3; i++ {
		result := p.orchestrator.RequestPasswordReset(ctx, "driver@example.com", testMeta)
		assert.Equal(t, models.ResetSent, result.Status)
	}

	result := p.orchestrator.RequestPasswordReset(ctx, "driver@example.com", testMeta)
	assert.Equal(t, models.ResetRateLimited, result.Status)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.Len(t, p.notifier.Messages, 3)
	assert.NotNil(t, p.audit.Find(models.EventRateLimitBreach))
}

func TestOrchestratorLogin_EmptyInputRejected(t *testing.T) {
	p := newPipeline(t)

	result := p.orchestrator.AttemptLogin(context.Background(), "", "secret", testMeta)
	assert.Equal(t, models.LoginInvalidCredentials, result.Status)
	assert.Zero(t, p.verifier.Calls)
	assert.Empty(t, p.attempts.Recorded)
}
