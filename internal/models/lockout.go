package models

import "time"

// AccountLockState is the per-account lock record. It is mutated only by the
// lockout manager, which serializes transitions per user id.
type AccountLockState struct {
	UserID             string     `db:"user_id"`
	Locked             bool       `db:"locked"`
	LockedUntil        *time.Time `db:"locked_until"`
	FailedAttemptCount int        `db:"failed_attempt_count"`
	UpdatedAt          time.Time  `db:"updated_at"`
}

// LockExpired reports whether a lock has passed its expiry. Expired locks are
// cleared lazily at the next check rather than by a background sweep.
func (s *AccountLockState) LockExpired(now time.Time) bool {
	return s.Locked && s.LockedUntil != nil && !now.Before(*s.LockedUntil)
}

// Remaining returns how long the lock still holds at the given instant.
func (s *AccountLockState) Remaining(now time.Time) time.Duration {
	if !s.Locked || s.LockedUntil == nil {
		return 0
	}
	if r := s.LockedUntil.Sub(now); r > 0 {
		return r
	}
	return 0
}
