package session

import (
	"time"
	"unicode/utf8"
)

// PendingLogin records an accepted credential submission awaiting its one-time code.
type PendingLogin struct {
	Email     string `json:"email"`
	AttemptID string `json:"attempt,omitempty"`
}

// maxIdentityField caps each identity field kept in the cookie so the encoded
// session stays well under the browser's 4KB cookie limit.
const maxIdentityField = 256

// identity is the part of a User that travels in the cookie. Profile data is
// dropped; only the fields guards and views read are kept.
type identity struct {
	ID    string `json:"id,omitempty"`
	Email string `json:"em,omitempty"`
	Role  string `json:"rl,omitempty"`
	Name  string `json:"nm,omitempty"`
}

func identityOf(u *User) *identity {
	if u == nil {
		return nil
	}
	return &identity{
		ID:    clampField(u.ID),
		Email: clampField(u.Email),
		Role:  clampField(u.Role),
		Name:  clampField(u.Name),
	}
}

func (i *identity) user() *User {
	if i == nil {
		return nil
	}
	return &User{ID: i.ID, Email: i.Email, Role: i.Role, Name: i.Name}
}

// clampField truncates s to maxIdentityField bytes on a rune boundary.
func clampField(s string) string {
	if len(s) <= maxIdentityField {
		return s
	}
	cut := maxIdentityField
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

type payload struct {
	ID       string        `json:"sid"`
	Issued   time.Time     `json:"iat"`
	Seen     time.Time     `json:"seen"`
	Deadline time.Time     `json:"exp"`
	User     *identity     `json:"usr,omitempty"`
	Pending  *PendingLogin `json:"pnd,omitempty"`
}

func (p payload) expired(now time.Time, idle time.Duration) bool {
	if !p.Deadline.IsZero() && now.After(p.Deadline) {
		return true
	}
	return idle > 0 && !p.Seen.IsZero() && now.Sub(p.Seen) > idle
}

// Session is the per-request view of the cookie. It satisfies Store, so the
// flow controller writes the verified user straight into it.
type Session struct {
	p payload
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.p.ID }

// IssuedAt returns when the session was first created.
func (s *Session) IssuedAt() time.Time { return s.p.Issued }

// CurrentUser returns the signed-in identity, or nil. Profile is never populated.
func (s *Session) CurrentUser() *User {
	return s.p.User.user()
}

// SetCurrentUser replaces the signed-in user. Only ID, Email, Role and Name are kept.
func (s *Session) SetCurrentUser(user *User) {
	s.p.User = identityOf(user)
}

// PendingLogin returns the credential step awaiting a code, if any.
func (s *Session) PendingLogin() *PendingLogin {
	if s.p.Pending == nil {
		return nil
	}
	pending := *s.p.Pending
	return &pending
}

// SetPendingLogin remembers the pending verification across requests.
func (s *Session) SetPendingLogin(pending PendingLogin) {
	s.p.Pending = &pending
}

// ClearPendingLogin forgets any pending verification.
func (s *Session) ClearPendingLogin() {
	s.p.Pending = nil
}
