package models

import "time"

// AuthAction identifies the kind of authentication attempt being recorded.
type AuthAction string

const (
	ActionLogin    AuthAction = "login"
	ActionRegister AuthAction = "register"
	ActionReset    AuthAction = "password_reset"

	// ActionNotify throttles outbound notification delivery through the same
	// limiter as the authentication actions, keyed separately.
	ActionNotify AuthAction = "notify"
)

// Valid reports whether the action is a known enum value.
func (a AuthAction) Valid() bool {
	switch a {
	case ActionLogin, ActionRegister, ActionReset, ActionNotify:
		return true
	}
	return false
}

// AttemptMetadata carries the source metadata captured with every attempt.
type AttemptMetadata struct {
	IPAddress string
	UserAgent string
}

// AuthAttempt represents a single authentication attempt. Rows are immutable
// once written; pruning happens only after ExpiresAt.
type AuthAttempt struct {
	ID                string     `db:"id"`
	Identity          string     `db:"identity"`
	Action            AuthAction `db:"action"`
	Success           bool       `db:"success"`
	FailureReason     *string    `db:"failure_reason"`
	IPAddress         string     `db:"ip_address"`
	UserAgent         string     `db:"user_agent"`
	ClientSignature   string     `db:"client_signature"`
	AttemptTime       time.Time  `db:"attempt_time"`
	ExpiresAt         time.Time  `db:"expires_at"`
}
