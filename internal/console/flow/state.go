// Package flow drives the two-step sign-in: credentials, then a one-time code, then a session.
package flow

import "finitefield.org/crm-console/internal/console/session"

// State is one of EnteringCredentials, AwaitingCode or Authenticated.
type State interface {
	isState()
	// FlowError returns the flow-level message retained alongside the state, if any.
	FlowError() string
}

// EnteringCredentials is the initial state.
type EnteringCredentials struct {
	Error string
}

// PendingVerification is the accepted credential step awaiting its code.
type PendingVerification struct {
	Email     string
	AttemptID string
}

// AwaitingCode holds the pending email while the user types the code.
type AwaitingCode struct {
	Pending PendingVerification
	Error   string
}

// Authenticated is terminal. The user has already been handed to the session store.
type Authenticated struct {
	User *session.User
}

func (EnteringCredentials) isState() {}
func (AwaitingCode) isState()        {}
func (Authenticated) isState()       {}

func (s EnteringCredentials) FlowError() string { return s.Error }
func (s AwaitingCode) FlowError() string        { return s.Error }
func (Authenticated) FlowError() string         { return "" }

// Start returns the initial state.
func Start() State {
	return EnteringCredentials{}
}

// Resume rebuilds the state from a persisted pending verification. Nil means no pending step.
func Resume(pending *PendingVerification) State {
	if pending == nil || pending.Email == "" {
		return Start()
	}
	return AwaitingCode{Pending: *pending}
}
