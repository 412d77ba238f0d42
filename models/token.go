package models

import "github.com/golang-jwt/jwt/v5"

// TokenClaims is the payload of an access token issued by the identity
// provider. The subject is trusted as issued; this server only verifies
// the signature and expiry.
type TokenClaims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller carried in the request context.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}
