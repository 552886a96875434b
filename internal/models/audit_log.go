package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType is the closed enumeration of security audit event types. New
// event types must be added here and consciously classified in
// IsSecuritySensitive.
type EventType string

const (
	EventLoginSuccess          EventType = "login_success"
	EventLoginFailure          EventType = "login_failure"
	EventRegisterSuccess       EventType = "register_success"
	EventRegisterFailure       EventType = "register_failure"
	EventPasswordResetRequest  EventType = "password_reset_requested"
	EventAccountLocked         EventType = "account_locked"
	EventAccountUnlocked       EventType = "account_unlocked"
	EventAccountRecovery       EventType = "account_recovery"
	EventMFAEnrollment         EventType = "mfa_enrollment"
	EventMFAEnabled            EventType = "mfa_enabled"
	EventMFADisabled           EventType = "mfa_disabled"
	EventMFAChallengeSuccess   EventType = "mfa_challenge_success"
	EventMFAChallengeFailure   EventType = "mfa_challenge_failure"
	EventRoleChange            EventType = "role_change"
	EventAccessDenied          EventType = "access_denied"
	EventRateLimitBreach       EventType = "rate_limit_breach"
	EventSuspiciousActivity    EventType = "suspicious_activity"
	EventUnusualLocation       EventType = "unusual_location"
	EventBruteForceDetected    EventType = "brute_force_detected"
	EventSessionHijackSuspect  EventType = "session_hijack_suspected"
	EventSystemError           EventType = "system_error"
)

// Severity levels for audit entries.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeveritySecurity Severity = "security"
)

// IsSecuritySensitive reports whether an event type belongs to the
// security-sensitive set. Entries for these events are always stored at
// SeveritySecurity regardless of the severity the caller supplied. The
// switch is exhaustive over EventType so that a newly added event type is a
// conscious classification decision.
func IsSecuritySensitive(t EventType) bool {
	switch t {
	case EventLoginFailure,
		EventAccountLocked,
		EventAccountUnlocked,
		EventAccountRecovery,
		EventRoleChange,
		EventMFAChallengeFailure,
		EventRateLimitBreach,
		EventSuspiciousActivity,
		EventUnusualLocation,
		EventBruteForceDetected,
		EventSessionHijackSuspect:
		return true
	case EventLoginSuccess,
		EventRegisterSuccess,
		EventRegisterFailure,
		EventPasswordResetRequest,
		EventMFAEnrollment,
		EventMFAEnabled,
		EventMFADisabled,
		EventMFAChallengeSuccess,
		EventAccessDenied,
		EventSystemError:
		return false
	}
	return false
}

// EffectiveSeverity applies the promotion rule: security-sensitive events are
// never stored below SeveritySecurity. Severity is never downgraded.
func EffectiveSeverity(t EventType, requested Severity) Severity {
	if IsSecuritySensitive(t) {
		return SeveritySecurity
	}
	return requested
}

// AuditLogEntry is one append-only security event. Entries are never mutated
// or deleted by normal operation.
type AuditLogEntry struct {
	ID        uuid.UUID   `db:"id"`
	EventType EventType   `db:"event_type"`
	Subject   string      `db:"subject"` // identity or user id
	Severity  Severity    `db:"severity"`
	Detail    AuditDetail `db:"detail"`
	CreatedAt time.Time   `db:"created_at"`
}

// AuditDetail holds the structured detail payload for an audit entry.
type AuditDetail map[string]interface{}

// Scan implements sql.Scanner for JSONB
func (d *AuditDetail) Scan(value interface{}) error {
	if value == nil {
		*d = make(AuditDetail)
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return ErrValidation
	}

	var m map[string]interface{}
	if err := json.Unmarshal(bytes, &m); err != nil {
		return err
	}
	*d = AuditDetail(m)
	return nil
}

// Value implements driver.Valuer for JSONB
func (d AuditDetail) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}
