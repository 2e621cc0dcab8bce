// Package auth provides JWT-based authentication for medsim-engine.
// Tokens are issued by the external identity provider and validated
// against its JWKS endpoints.
package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Engine roles carried in the JWT role claim.
const (
	RoleAdmin   = "admin"
	RoleTrainer = "trainer"
	RoleManager = "manager"
	RoleRep     = "rep"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const (
	// ClaimsKey is the context key for storing JWT claims.
	ClaimsKey contextKey = "claims"
	// TokenKey is the context key for storing the raw JWT token string.
	TokenKey contextKey = "token"
)

// Claims represents the JWT claims structure from the identity provider.
// It embeds RegisteredClaims for standard JWT fields (sub, iss, exp) and
// adds the engine role claim.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// Principal identifies the authenticated caller for service-layer
// authorization decisions.
type Principal struct {
	UserID uuid.UUID
	Role   string
}

// Elevated reports whether the principal may act on visits it does not
// own (trainers review sessions, managers see team results).
func (p Principal) Elevated() bool {
	switch p.Role {
	case RoleAdmin, RoleTrainer, RoleManager:
		return true
	}
	return false
}

// GetClaims retrieves JWT claims from the request context.
// Returns nil and false if claims are not present.
func GetClaims(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*Claims)
	return claims, ok
}

// GetToken retrieves the raw JWT token string from the request context.
func GetToken(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(TokenKey).(string)
	return token, ok
}

// PrincipalFromContext builds the caller's principal from claims in the
// context. Returns an error if not authenticated or the subject is not a
// valid UUID.
func PrincipalFromContext(ctx context.Context) (Principal, error) {
	claims, ok := GetClaims(ctx)
	if !ok || claims == nil {
		return Principal{}, fmt.Errorf("authentication required: no claims in context")
	}

	if claims.Subject == "" {
		return Principal{}, fmt.Errorf("missing subject in JWT claims")
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid subject format: %w", err)
	}

	role := claims.Role
	if role == "" {
		role = RoleRep
	}

	return Principal{UserID: userID, Role: role}, nil
}
