package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token timestamps are kept to the millisecond.
func init() {
	jwt.TimePrecision = time.Millisecond
}

// Claims is the payload of a chat session token.
type Claims struct {
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`

	// Generation is the user's logout count when the token was issued.
	Generation uint64 `json:"gen,omitempty"`

	jwt.RegisteredClaims
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

func (c *JWTConfig) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	}
	if c.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.Issuer))
	}
	if c.Audience != "" {
		opts = append(opts, jwt.WithAudience(c.Audience))
	}
	return opts
}

// IssueToken signs an HS256 token for the user valid for cfg.TTL.
func IssueToken(cfg *JWTConfig, userID int64, username string) (string, time.Time, error) {
	return issueToken(cfg, userID, username, 0)
}

func issueToken(cfg *JWTConfig, userID int64, username string, generation uint64) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(cfg.TTL)

	claims := Claims{
		UserID:     userID,
		Username:   username,
		Generation: generation,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   username,
			Issuer:    cfg.Issuer,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// ParseToken verifies signature, expiry, issuer and audience.
func ParseToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return cfg.Secret, nil
	}, cfg.parserOptions()...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if claims.UserID == 0 {
		return nil, errors.New("token without user")
	}
	return claims, nil
}
