package credential

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// unverifiedExpiry reads the exp claim from a JWT shaped token without
// validating its signature. The manager never verifies tokens; it only
// needs the expiry when the server omitted expires_in. Non-JWT tokens and
// tokens without exp yield nil.
func unverifiedExpiry(token string) *time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}

	t := exp.Time
	return &t
}
