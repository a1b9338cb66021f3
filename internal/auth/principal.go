// Package auth issues and verifies session tokens and carries the
// authenticated principal through request handling.
package auth

import (
	"context"
	"slices"

	"github.com/google/uuid"

	"unilib/internal/apperr"
)

type Role string

const (
	RoleStudent   Role = "STUDENT"
	RoleManager   Role = "MANAGER"
	RoleAdmin     Role = "ADMIN"
	RoleLibrarian Role = "LIBRARIAN"
)

// ManagerRoles may run management operations.
var ManagerRoles = []Role{RoleManager, RoleAdmin, RoleLibrarian}

// Principal is the authenticated caller.
type Principal struct {
	UserID uuid.UUID
	Role   Role
}

func (p Principal) IsZero() bool {
	return p.UserID == uuid.Nil
}

func (p Principal) HasRole(roles ...Role) bool {
	return slices.Contains(roles, p.Role)
}

// RequireManager returns Unauthorized for an anonymous principal and
// Forbidden for one outside ManagerRoles.
func RequireManager(p Principal) error {
	if p.IsZero() {
		return apperr.Unauthorized("authentication required")
	}
	if !p.HasRole(ManagerRoles...) {
		return apperr.Forbidden("role %s is not allowed to perform this operation", p.Role)
	}
	return nil
}

type contextKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFrom returns the principal stored by the middleware, or the
// zero Principal for anonymous requests.
func PrincipalFrom(ctx context.Context) Principal {
	p, _ := ctx.Value(contextKey{}).(Principal)
	return p
}
