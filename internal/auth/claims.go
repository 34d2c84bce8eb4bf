package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenInfo is what whoami can tell about a token without the signing key.
type TokenInfo struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Expired reports whether the token carries an expiry that is in the past.
func (ti TokenInfo) Expired(now time.Time) bool {
	return !ti.ExpiresAt.IsZero() && now.After(ti.ExpiresAt)
}

// InspectToken decodes JWT claims without verifying the signature. It is for
// display only and is never used to decide whether a request may be sent.
func InspectToken(token string) (TokenInfo, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return TokenInfo{}, fmt.Errorf("token is not a JWT: %w", err)
	}

	var ti TokenInfo
	ti.Subject = claims.Subject
	if claims.IssuedAt != nil {
		ti.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		ti.ExpiresAt = claims.ExpiresAt.Time
	}
	return ti, nil
}
