package helpers

import (
	"context"

	"finitefield.org/crm-console/internal/console/httpserver/middleware"
	"finitefield.org/crm-console/internal/console/rbac"
)

// HasCapability reports whether the signed-in user possesses the capability.
// Empty capabilities are unconstrained.
func HasCapability(ctx context.Context, capability rbac.Capability) bool {
	if capability == "" {
		return true
	}
	user := middleware.CurrentUserFromContext(ctx)
	if user == nil {
		return false
	}
	return rbac.HasCapability(user.Role, capability)
}
