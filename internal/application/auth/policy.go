package auth

import (
	"fmt"

	"github.com/bryanwahyu/receipt-pipeline/internal/domain/identity"
)

// Authorize allows admins unconditionally and everyone else only when they
// hold requiredRole.
func Authorize(id identity.Identity, requiredRole string) error {
	if id.IsAdmin() || id.HasRole(requiredRole) {
		return nil
	}
	return fmt.Errorf("%w: %s requires role %q", identity.ErrAuthorization, id.UserID, requiredRole)
}

// RequireRole is a role requirement bound to one role name.
type RequireRole string

// Check evaluates the requirement for id.
func (r RequireRole) Check(id identity.Identity) error {
	return Authorize(id, string(r))
}

// GrantingRole names the role that satisfied requiredRole for id: the
// required role itself when held, otherwise admin.
func GrantingRole(id identity.Identity, requiredRole string) string {
	if id.HasRole(requiredRole) {
		return requiredRole
	}
	return identity.RoleAdmin
}
