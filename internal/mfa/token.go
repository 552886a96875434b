package mfa

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// PendingTokenTTL bounds how long a password-verified login may wait for its
// MFA challenge to complete.
const PendingTokenTTL = 5 * time.Minute

// PendingClaims binds a half-finished login to the user and factor it must
// complete a challenge for.
type PendingClaims struct {
	Type     string `json:"type"`
	UserID   string `json:"user_id"`
	FactorID string `json:"factor_id"`
	jwt.RegisteredClaims
}

// TokenManager issues and validates the short-lived token handed to the
// caller between password success and challenge verification.
type TokenManager struct {
	secret []byte
}

// NewTokenManager creates a new pending-token manager
func NewTokenManager(secret string) *TokenManager {
	return &TokenManager{secret: []byte(secret)}
}

// Issue creates a pending token for a user and factor
func (tm *TokenManager) Issue(userID, factorID string) (string, error) {
	now := time.Now()
	claims := PendingClaims{
		Type:     "mfa_pending",
		UserID:   userID,
		FactorID: factorID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(PendingTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign pending token: %w", err)
	}

	return signed, nil
}

// Validate parses a pending token and returns its claims
func (tm *TokenManager) Validate(tokenString string) (*PendingClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &PendingClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid pending token: %w", err)
	}

	claims, ok := token.Claims.(*PendingClaims)
	if !ok || !token.Valid || claims.Type != "mfa_pending" {
		return nil, fmt.Errorf("invalid pending token claims")
	}

	return claims, nil
}
