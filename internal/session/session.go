// Package session carries the caller identity (token, tenant, user) that
// components need, instead of reading it from ambient storage.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Context exposes the identity of the current caller
type Context interface {
	Token() string
	TenantID() string
	UserID() string
}

// Static is a fixed Context, used by the CLI and in tests
type Static struct {
	AccessToken string
	Tenant      string
	User        string
}

func (s Static) Token() string    { return s.AccessToken }
func (s Static) TenantID() string { return s.Tenant }
func (s Static) UserID() string   { return s.User }

// Anonymous has no token, tenant or user
var Anonymous Context = Static{}

// ErrInvalidToken is returned when a bearer token cannot be verified
var ErrInvalidToken = errors.New("invalid token")

// Claim names carried in session tokens
const (
	ClaimTenant = "tenantId"
	ClaimUser   = "userId"
)

// ParseToken verifies an HMAC-signed token and returns the session it describes
func ParseToken(tokenString, secret string) (Static, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return Static{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Static{}, ErrInvalidToken
	}

	tenant, _ := claims[ClaimTenant].(string)
	user, _ := claims[ClaimUser].(string)
	if user == "" {
		// fall back to the registered subject claim
		user, _ = claims["sub"].(string)
	}

	return Static{AccessToken: tokenString, Tenant: tenant, User: user}, nil
}

// IssueToken signs a session token. The server never hands these out on its
// own; it exists for the CLI and for tests.
func IssueToken(tenantID, userID, secret string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		ClaimTenant: tenantID,
		ClaimUser:   userID,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

type ctxKey struct{}

// WithContext attaches sc to ctx
func WithContext(ctx context.Context, sc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, sc)
}

// FromContext returns the session attached to ctx, or Anonymous
func FromContext(ctx context.Context) Context {
	if sc, ok := ctx.Value(ctxKey{}).(Context); ok && sc != nil {
		return sc
	}
	return Anonymous
}
