package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/models"
	"github.com/Jalal-Nasser/Dream-KSA-V2-sub002/pkg"
)

// tokenIssuer is the iss claim of tokens minted by Issue.
const tokenIssuer = "mic-arbiter"

// TokenService verifies access tokens from the identity provider. The
// subject is trusted as issued; only signature and expiry are checked.
type TokenService interface {
	Validate(tokenString string) (*models.Identity, error)

	// Issue signs a token with the shared secret. Used by the "token"
	// command for local development.
	Issue(userID, username string, ttl time.Duration) (string, error)
}

type tokenService struct {
	secret []byte
}

// NewTokenService creates a TokenService for HS256 tokens.
func NewTokenService(secret string) TokenService {
	return &tokenService{secret: []byte(secret)}
}

func (s *tokenService) Validate(tokenString string) (*models.Identity, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: missing token", pkg.ErrUnauthenticated)
	}

	token, err := jwt.ParseWithClaims(tokenString, &models.TokenClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: token expired", pkg.ErrUnauthenticated)
		}
		return nil, fmt.Errorf("%w: invalid token", pkg.ErrUnauthenticated)
	}

	claims, ok := token.Claims.(*models.TokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: invalid token claims", pkg.ErrUnauthenticated)
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: token has no subject", pkg.ErrUnauthenticated)
	}

	return &models.Identity{UserID: userID, Username: claims.Username}, nil
}

func (s *tokenService) Issue(userID, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &models.TokenClaims{
		UserID:   userID,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign access token: %w", err)
	}
	return signed, nil
}
