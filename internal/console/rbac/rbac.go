package rbac

import (
	"strings"
)

// Role represents a console access tier.
type Role string

const (
	RoleAdmin Role = "admin"
	// RoleUser is the default tier granted to every non-admin account.
	RoleUser Role = "user"
)

// Capability represents a console view or action which can be checked in handlers and templates.
type Capability string

const (
	CapDashboardView  Capability = "dashboard.view"
	CapContactsView   Capability = "contacts.view"
	CapCompaniesView  Capability = "companies.view"
	CapKanbanView     Capability = "kanban.view"
	CapMessagesView   Capability = "messages.view"
	CapSettingsManage Capability = "settings.manage"
)

// capabilityRoles maps each capability to the roles permitted to access it.
var capabilityRoles = map[Capability]Roles{
	CapDashboardView:  {RoleAdmin, RoleUser},
	CapContactsView:   {RoleAdmin, RoleUser},
	CapCompaniesView:  {RoleAdmin, RoleUser},
	CapKanbanView:     {RoleAdmin, RoleUser},
	CapMessagesView:   {RoleAdmin, RoleUser},
	CapSettingsManage: {RoleAdmin},
}

// Roles captures the set of roles permitted to use a capability.
type Roles []Role

// Has returns true if the provided role exists in the set.
func (rs Roles) Has(role Role) bool {
	for _, r := range rs {
		if r == role {
			return true
		}
	}
	return false
}

// NormaliseRole converts a raw role string into its canonical Role value.
// Empty or unknown values map to RoleUser so that only an explicit "admin" grants admin access.
func NormaliseRole(raw string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin
	default:
		return RoleUser
	}
}

// IsAdmin reports whether the raw role equals the admin enumerator.
func IsAdmin(raw string) bool {
	return NormaliseRole(raw) == RoleAdmin
}

// RolesForCapability returns the configured roles able to access the capability.
func RolesForCapability(cap Capability) Roles {
	if roles, ok := capabilityRoles[cap]; ok {
		return roles
	}
	return nil
}

// HasCapability reports whether the provided role grants access to the capability.
// Admin users implicitly possess every defined capability.
func HasCapability(role string, capability Capability) bool {
	if capability == "" {
		return true
	}
	allowed := RolesForCapability(capability)
	if len(allowed) == 0 {
		return false
	}
	normalised := NormaliseRole(role)
	if normalised == RoleAdmin {
		return true
	}
	return allowed.Has(normalised)
}

// CapabilitiesForRole enumerates the capabilities accessible to the provided role.
func CapabilitiesForRole(role string) map[Capability]bool {
	normalised := NormaliseRole(role)
	caps := make(map[Capability]bool, len(capabilityRoles))
	for capability, allowed := range capabilityRoles {
		if normalised == RoleAdmin || allowed.Has(normalised) {
			caps[capability] = true
		}
	}
	return caps
}
