package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claim set carried by Chatterbox session tokens.
type Payload struct {
	jwt.StandardClaims

	// UserID is the stable identifier of the authenticated user.
	UserID string `json:"uid"`

	// Email is informational; authorization decisions use UserID only.
	Email string `json:"email,omitempty"`
}
