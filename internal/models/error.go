package models

import "errors"

// Sentinel errors for common failure conditions
var (
	ErrValidation     = errors.New("invalid input")
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrForbidden      = errors.New("forbidden")
	ErrInternalServer = errors.New("internal server error")

	// Authentication pipeline errors
	ErrInvalidCredentials = errors.New("authentication failed")
	ErrRateLimited        = errors.New("too many attempts")
	ErrAccountLocked      = errors.New("account is temporarily locked")

	// MFA errors
	ErrMFAFactorNotFound   = errors.New("mfa factor not found")
	ErrMFAFactorDisabled   = errors.New("mfa factor is disabled")
	ErrMFAInvalidCode      = errors.New("invalid verification code")
	ErrMFAChallengeExpired = errors.New("verification challenge is no longer valid")
)
