package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

// Claims is the session token payload: the subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// TokenIssuer signs and verifies HS256 session tokens. With a revocation
// store attached, logged-out tokens stop verifying.
type TokenIssuer struct {
	secret  []byte
	ttl     time.Duration
	now     func() time.Time
	revoked RevocationStore
}

func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// WithRevocations attaches store and returns i.
func (i *TokenIssuer) WithRevocations(store RevocationStore) *TokenIssuer {
	i.revoked = store
	return i
}

// Revoke invalidates the session's token until it expires.
func (i *TokenIssuer) Revoke(ctx context.Context, s Session) error {
	if i.revoked == nil || s.TokenID == "" {
		return nil
	}
	return i.revoked.Revoke(ctx, s.TokenID, s.ExpiresAt)
}

// IsRevoked reports whether the token behind claims was logged out.
func (i *TokenIssuer) IsRevoked(ctx context.Context, claims *Claims) (bool, error) {
	if i.revoked == nil || claims.ID == "" {
		return false, nil
	}
	return i.revoked.IsRevoked(ctx, claims.ID)
}

// Issue mints a token for the user that expires after the configured TTL.
func (i *TokenIssuer) Issue(userID, role string) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		Role: role,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Parse verifies the signature and expiry and returns the claims.
func (i *TokenIssuer) Parse(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
