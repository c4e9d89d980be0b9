package session

import (
	"sync/atomic"
)

// User captures the authenticated identity materialised after second-factor verification.
type User struct {
	ID      string         `json:"id"`
	Email   string         `json:"email,omitempty"`
	Role    string         `json:"role,omitempty"`
	Name    string         `json:"name,omitempty"`
	Profile map[string]any `json:"profile,omitempty"`
}

// Clone returns a deep-enough copy so the stored value never aliases caller memory.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	copied := *u
	if u.Profile != nil {
		copied.Profile = make(map[string]any, len(u.Profile))
		for k, v := range u.Profile {
			copied.Profile[k] = v
		}
	}
	return &copied
}

// Reader is the read-only view of the current identity handed to guards and views.
type Reader interface {
	CurrentUser() *User
}

// Store is the single-writer holder of the current identity.
// SetCurrentUser replaces the whole user in one assignment.
type Store interface {
	Reader
	SetCurrentUser(user *User)
}

// MemoryStore is a process-wide Store used by the CLI, where one process equals one signed-in user.
type MemoryStore struct {
	current atomic.Pointer[User]
}

// NewMemoryStore returns an empty store (no session).
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// CurrentUser returns a copy of the stored user or nil when logged out.
func (m *MemoryStore) CurrentUser() *User {
	return m.current.Load().Clone()
}

// SetCurrentUser atomically swaps in a fully constructed copy of user.
func (m *MemoryStore) SetCurrentUser(user *User) {
	m.current.Store(user.Clone())
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*Session)(nil)
)
