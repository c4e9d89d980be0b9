// Package guard decides whether the current identity may open a view.
// Policies are pure functions of the session snapshot and never call out.
package guard

import (
	"finitefield.org/crm-console/internal/console/rbac"
	"finitefield.org/crm-console/internal/console/session"
)

// Reasons reported on denial.
const (
	ReasonUnauthenticated = "unauthenticated"
	ReasonForbidden       = "forbidden"
)

// Decision is the outcome of evaluating policies.
type Decision struct {
	Allowed  bool
	Redirect string
	Reason   string
}

// Allow is the passing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny redirects to target.
func Deny(target, reason string) Decision {
	return Decision{Redirect: target, Reason: reason}
}

// Policy checks one condition against a user snapshot (nil when logged out).
type Policy interface {
	Check(user *session.User) Decision
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(user *session.User) Decision

// Check implements Policy.
func (f PolicyFunc) Check(user *session.User) Decision {
	return f(user)
}

// Authenticated passes when a user is present and otherwise redirects to loginPath.
func Authenticated(loginPath string) Policy {
	return PolicyFunc(func(user *session.User) Decision {
		if user == nil {
			return Deny(loginPath, ReasonUnauthenticated)
		}
		return Allow()
	})
}

// Admin passes only for an admin user. Anyone else, including a visitor with no
// session, goes to rootPath; list Authenticated first to send visitors to login.
func Admin(rootPath string) Policy {
	return PolicyFunc(func(user *session.User) Decision {
		if user == nil || !rbac.IsAdmin(user.Role) {
			return Deny(rootPath, ReasonForbidden)
		}
		return Allow()
	})
}

// Evaluate reads the store once and applies policies in order; the first denial wins.
// No policies means allowed.
func Evaluate(reader session.Reader, policies ...Policy) Decision {
	var user *session.User
	if reader != nil {
		user = reader.CurrentUser()
	}
	for _, p := range policies {
		if p == nil {
			continue
		}
		if d := p.Check(user); !d.Allowed {
			return d
		}
	}
	return Allow()
}

// IsAuthenticated reports whether reader holds a user.
func IsAuthenticated(reader session.Reader) bool {
	return reader != nil && reader.CurrentUser() != nil
}

// CurrentRole returns the normalised role of the current user, or "" when logged out.
func CurrentRole(reader session.Reader) string {
	if reader == nil {
		return ""
	}
	user := reader.CurrentUser()
	if user == nil {
		return ""
	}
	return string(rbac.NormaliseRole(user.Role))
}
