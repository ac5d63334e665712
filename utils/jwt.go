package utils

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/phillip/farewell-fund-go/models"
)

const tokenIssuer = "farewell-fund"

// Claims is the session payload. EventRoles maps event id to role name as
// issued; use Roles for the validated form.
type Claims struct {
	UserID     string            `json:"user_id"`
	Email      string            `json:"email,omitempty"`
	EventRoles map[string]string `json:"event_roles,omitempty"`
	jwt.RegisteredClaims
}

// Roles decodes EventRoles. Entries naming an unknown role are dropped so the
// membership store decides for that event.
func (c *Claims) Roles() map[string]models.Role {
	if len(c.EventRoles) == 0 {
		return nil
	}
	out := make(map[string]models.Role, len(c.EventRoles))
	for eventID, raw := range c.EventRoles {
		role, err := models.ParseRole(raw)
		if err != nil || eventID == "" {
			continue
		}
		out[eventID] = role
	}
	return out
}

func GenerateToken(secret, userID, email string, roles map[string]models.Role, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("jwt secret is empty")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	raw := make(map[string]string, len(roles))
	for eventID, role := range roles {
		raw[eventID] = string(role)
	}

	now := time.Now()
	claims := &Claims{
		UserID:     userID,
		Email:      email,
		EventRoles: raw,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies signature, algorithm and expiry.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.UserID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}
