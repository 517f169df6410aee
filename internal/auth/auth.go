// Package auth is the interface to the external auth collaborator: it only
// verifies the bearer token presented at websocket upgrade and extracts the
// user identity. Account lifecycle lives elsewhere.
package auth

import (
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/KiritiVelivela/chess-multiplayer/internal/domain"
)

type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) (*Verifier, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}
	return &Verifier{secret: []byte(secret)}, nil
}

// GenerateToken mints an HS256 token for a user. The serving path never
// calls this; it exists for tests and local tooling.
func (v *Verifier) GenerateToken(user domain.Player, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID,
		"name": user.Name,
		"exp":  time.Now().Add(ttl).Unix(),
		"iat":  time.Now().Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses and validates the token and returns the bound identity.
func (v *Verifier) Verify(tokenString string) (domain.Player, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return domain.Player{}, fmt.Errorf("invalid token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return domain.Player{}, fmt.Errorf("unexpected claims type")
	}
	sub, _ := claims["sub"].(string)
	name, _ := claims["name"].(string)
	if strings.TrimSpace(sub) == "" {
		return domain.Player{}, fmt.Errorf("token has no subject")
	}
	if strings.TrimSpace(name) == "" {
		name = sub
	}
	return domain.Player{ID: sub, Name: name}, nil
}
