package models

import "time"

// FactorType identifies the kind of MFA factor.
type FactorType string

const (
	FactorTOTP FactorType = "totp"
	FactorSMS  FactorType = "sms"
)

// Valid reports whether the factor type is a known enum value.
func (t FactorType) Valid() bool {
	switch t {
	case FactorTOTP, FactorSMS:
		return true
	}
	return false
}

// FactorStatus is the lifecycle state of an enrolled factor.
type FactorStatus string

const (
	FactorPendingVerification FactorStatus = "pending_verification"
	FactorActive              FactorStatus = "active"
	FactorDisabled            FactorStatus = "disabled"
)

// MFAFactor is an enrolled factor. A factor becomes active only after its
// first successful challenge; at most one active factor per type per user.
type MFAFactor struct {
	ID              string       `db:"id"`
	UserID          string       `db:"user_id"`
	Type            FactorType   `db:"type"`
	Status          FactorStatus `db:"status"`
	SecretEncrypted []byte       `db:"secret_encrypted"` // AES-256-GCM, totp only
	SecretNonce     []byte       `db:"secret_nonce"`
	Destination     string       `db:"destination"` // phone number, sms only
	CreatedAt       time.Time    `db:"created_at"`
	ActivatedAt     *time.Time   `db:"activated_at"`
}

// IsActive reports whether the factor can be challenged for login.
func (f *MFAFactor) IsActive() bool {
	return f.Status == FactorActive
}

// MFAChallenge is a single-use verification round issued against a factor.
// Invalidated on success, expiry, or exceeding the attempt bound.
type MFAChallenge struct {
	ID           string     `db:"id"`
	FactorID     string     `db:"factor_id"`
	CodeHash     string     `db:"code_hash"` // bcrypt, sms only
	IssuedAt     time.Time  `db:"issued_at"`
	ExpiresAt    time.Time  `db:"expires_at"`
	AttemptCount int        `db:"attempt_count"`
	ConsumedAt   *time.Time `db:"consumed_at"`
}

// Expired reports whether the challenge window has closed.
func (c *MFAChallenge) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Consumed reports whether the challenge was already verified once.
func (c *MFAChallenge) Consumed() bool {
	return c.ConsumedAt != nil
}

// MFASetupInfo is returned to the caller on enrollment. ChallengeID and
// MFAToken reference the verification challenge issued alongside the factor;
// verifying it is what moves the factor out of pending_verification.
type MFASetupInfo struct {
	FactorID    string `json:"factor_id"`
	Type        string `json:"type"`
	Secret      string `json:"secret,omitempty"`      // base32 TOTP secret, shown once
	OTPAuthURL  string `json:"otpauth_url,omitempty"` // provisioning URL
	QRCode      string `json:"qr_code,omitempty"`     // PNG data URL
	ChallengeID string `json:"challenge_id"`
	MFAToken    string `json:"mfa_token"`
}
