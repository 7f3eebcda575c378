package modal

import (
	"errors"
	"strings"
)

// Kind identifies which modal is open.
type Kind string

// Modal kinds
const (
	KindClosed   Kind = "closed"
	KindLogin    Kind = "login"
	KindRegister Kind = "register"
)

// Domain errors
var (
	ErrNotAuthenticated = errors.New("teachers must log in to register students")
	ErrEmptyActivity    = errors.New("register modal needs an activity")
)

// State is the pending UI state: at most one modal, and for the register
// modal the activity it targets. The zero value is Closed.
type State struct {
	Kind     Kind
	Activity string // set only for KindRegister
}

// Closed returns the initial state.
func Closed() State {
	return State{Kind: KindClosed}
}

// IsOpen reports whether any modal is showing.
// INVARIANT: State fields are not mutated
func (s State) IsOpen() bool {
	return s.Kind == KindLogin || s.Kind == KindRegister
}

// IsLogin reports whether the login modal is showing.
func (s State) IsLogin() bool { return s.Kind == KindLogin }

// IsRegister reports whether the register modal is showing.
func (s State) IsRegister() bool { return s.Kind == KindRegister }

// OpenLogin transitions to LoginOpen from any state.
// Opening one modal replaces the other, so two are never open together.
func (s State) OpenLogin() State {
	return State{Kind: KindLogin}
}

// OpenRegister transitions to RegisterOpen(activity).
// PRE: caller is authenticated; activity is non-empty
// POST: Returns the new state, or the unchanged state and an error
func (s State) OpenRegister(activity string, authenticated bool) (State, error) {
	if !authenticated {
		return s, ErrNotAuthenticated
	}
	activity = strings.TrimSpace(activity)
	if activity == "" {
		return s, ErrEmptyActivity
	}
	return State{Kind: KindRegister, Activity: activity}, nil
}

// Close transitions to Closed from any state.
func (s State) Close() State {
	return Closed()
}
