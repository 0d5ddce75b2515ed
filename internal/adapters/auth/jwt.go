// Package auth verifies bearer tokens issued by the account service.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/farmpulse/internal/core"
	"github.com/dkeye/farmpulse/internal/domain"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoSecret = errors.New("jwt secret is empty")

type claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// JWTVerifier checks HMAC-signed tokens carrying sub and role.
type JWTVerifier struct {
	secret []byte
	method jwt.SigningMethod
}

func NewJWTVerifier(secret, algorithm string) (*JWTVerifier, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	m := jwt.GetSigningMethod(algorithm)
	if _, ok := m.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unsupported jwt algorithm %q", algorithm)
	}
	return &JWTVerifier{secret: []byte(secret), method: m}, nil
}

func (v *JWTVerifier) Verify(token string) (domain.Identity, error) {
	var c claims
	_, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{v.method.Alg()}))
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", core.ErrInvalidToken, err)
	}
	if c.Subject == "" {
		return domain.Identity{}, fmt.Errorf("%w: missing sub", core.ErrInvalidToken)
	}
	role, err := domain.ParseUserRole(c.Role)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("%w: %w", core.ErrInvalidToken, err)
	}
	return domain.Identity{ID: domain.UserID(c.Subject), Role: role}, nil
}

// Issue signs a token for id. Used for development fixtures and tests.
func (v *JWTVerifier) Issue(id domain.Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	c := claims{
		Role: string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(v.method, c).SignedString(v.secret)
}
