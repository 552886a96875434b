package models

import "time"

// GenericAuthMessage is returned for invalid credentials, throttled and
// locked outcomes alike so that response wording does not reveal whether an
// identity exists.
const GenericAuthMessage = "authentication failed, please try again later"

// LoginStatus discriminates the terminal outcome of a login request.
type LoginStatus string

const (
	LoginSuccess            LoginStatus = "success"
	LoginInvalidCredentials LoginStatus = "invalid_credentials"
	LoginRateLimited        LoginStatus = "rate_limited"
	LoginAccountLocked      LoginStatus = "account_locked"
	LoginMFARequired        LoginStatus = "mfa_required"
	LoginSystemError        LoginStatus = "system_error"
)

// LoginResult is the single discriminated result of a login attempt.
type LoginResult struct {
	Status      LoginStatus   `json:"status"`
	UserID      string        `json:"user_id,omitempty"`
	RetryAfter  time.Duration `json:"retry_after,omitempty"`
	FactorID    string        `json:"factor_id,omitempty"`
	ChallengeID string        `json:"challenge_id,omitempty"`
	MFAToken    string        `json:"mfa_token,omitempty"`
	Message     string        `json:"message,omitempty"`
}

// RegisterStatus discriminates the terminal outcome of a register request.
type RegisterStatus string

const (
	RegisterSuccessful    RegisterStatus = "success"
	RegisterInvalidInput  RegisterStatus = "invalid_input"
	RegisterRateLimited   RegisterStatus = "rate_limited"
	RegisterAlreadyExists RegisterStatus = "already_exists"
	RegisterSystemError   RegisterStatus = "system_error"
)

// RegisterResult is the single discriminated result of a register attempt.
type RegisterResult struct {
	Status     RegisterStatus `json:"status"`
	UserID     string         `json:"user_id,omitempty"`
	Reason     string         `json:"reason,omitempty"`
	RetryAfter time.Duration  `json:"retry_after,omitempty"`
}

// ResetStatus discriminates the outcome of a password reset request.
type ResetStatus string

const (
	ResetSent        ResetStatus = "sent"
	ResetRateLimited ResetStatus = "rate_limited"
	ResetSystemError ResetStatus = "system_error"
)

// ResetResult is the result of a password reset request.
type ResetResult struct {
	Status     ResetStatus   `json:"status"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}

// MFAVerifyStatus discriminates the outcome of a challenge verification.
type MFAVerifyStatus string

const (
	MFAVerified    MFAVerifyStatus = "verified"
	MFAInvalidCode MFAVerifyStatus = "invalid_code"
	MFAExpired     MFAVerifyStatus = "expired"
)

// MFAVerifyResult is the result of verifying an MFA challenge.
type MFAVerifyResult struct {
	Status MFAVerifyStatus `json:"status"`
	UserID string          `json:"user_id,omitempty"`
}
