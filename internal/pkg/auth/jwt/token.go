package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt"
)

const (
	// DefaultSessionExpiration is used when the configured token TTL is zero.
	DefaultSessionExpiration = 24 * time.Hour

	// TokenIssuer identifies tokens minted by this server.
	TokenIssuer = "Chatterbox-Server"
)

var (
	// ErrTokenExpired is returned for a well-signed token past its expiry.
	ErrTokenExpired = errors.New("session token expired")

	// ErrTokenInvalid covers every other rejection: bad signature, wrong issuer, no user.
	ErrTokenInvalid = errors.New("session token invalid")
)

// GenerateToken signs payload with HS256 and stamps subject, issue and expiry claims.
func GenerateToken(payload *Payload, secretKey string, duration time.Duration) (string, error) {
	if duration <= 0 {
		duration = DefaultSessionExpiration
	}

	now := time.Now()
	payload.StandardClaims = jwt.StandardClaims{
		Subject:   payload.UserID,
		ExpiresAt: now.Add(duration).Unix(),
		IssuedAt:  now.Unix(),
		Issuer:    TokenIssuer,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, payload).SignedString([]byte(secretKey))
}

// ParseToken verifies tokenString and returns its payload. Failures are ErrTokenExpired or
// ErrTokenInvalid.
func ParseToken(tokenString string, secretKey string) (*Payload, error) {
	claims := &Payload{}

	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrTokenInvalid
		}
		return []byte(secretKey), nil
	})

	var verr *jwt.ValidationError
	switch {
	case errors.As(err, &verr) && verr.Errors == jwt.ValidationErrorExpired:
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	case claims.UserID == "" || claims.Issuer != TokenIssuer || claims.Subject != claims.UserID:
		return nil, ErrTokenInvalid
	}

	return claims, nil
}
