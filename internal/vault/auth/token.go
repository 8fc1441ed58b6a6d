// Package auth implements the session token envelope: an HS256 JWT carrying
// the opaque session id. The signature lets garbage tokens be rejected
// without a storage round-trip; the session row remains the authoritative
// record of validity and revocation.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dmitrijs2005/passvault/internal/common"
)

// Claims carries the registered claims plus the session id.
type Claims struct {
	jwt.RegisteredClaims
	SessionID string
}

// GenerateToken signs a token for the given session id, expiring at expiry.
func GenerateToken(sessionID string, secretKey []byte, expiry time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
		SessionID: sessionID,
	})

	return token.SignedString(secretKey)
}

// GetSessionIDFromToken verifies the signature and returns the embedded
// session id. Expired tokens yield common.ErrorSessionExpired; anything else
// that fails verification yields common.ErrInvalidToken.
func GetSessionIDFromToken(tokenString string, secretKey []byte) (string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", common.ErrorSessionExpired
		}
		return "", common.ErrInvalidToken
	}

	if !token.Valid || claims.SessionID == "" {
		return "", common.ErrInvalidToken
	}

	return claims.SessionID, nil
}
