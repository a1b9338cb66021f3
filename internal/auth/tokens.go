// internal/auth/tokens.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the token payload.
type Claims struct {
	UserID uuid.UUID `json:"userId"`
	Role   Role      `json:"role"`
	jwt.RegisteredClaims
}

// TokenManager signs and verifies HS256 session tokens.
type TokenManager struct {
	secretKey     []byte
	tokenLifetime time.Duration
	now           func() time.Time
}

func NewTokenManager(secretKey string, lifetime time.Duration) *TokenManager {
	return &TokenManager{
		secretKey:     []byte(secretKey),
		tokenLifetime: lifetime,
		now:           time.Now,
	}
}

func (m *TokenManager) Lifetime() time.Duration {
	return m.tokenLifetime
}

// GenerateToken returns a signed token for the principal and its expiry.
func (m *TokenManager) GenerateToken(p Principal) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.tokenLifetime)
	claims := &Claims{
		UserID: p.UserID,
		Role:   p.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.UserID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secretKey)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// ParseToken verifies the signature and expiry and returns the principal.
func (m *TokenManager) ParseToken(tokenString string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secretKey, nil
	}, jwt.WithTimeFunc(m.now), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Principal{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return Principal{}, errors.New("token is not valid")
	}
	if claims.UserID == uuid.Nil {
		return Principal{}, errors.New("token carries no user id")
	}
	return Principal{UserID: claims.UserID, Role: claims.Role}, nil
}
