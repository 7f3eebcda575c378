package session

import "strings"

// Session is the portal's in-memory copy of the backend's teacher session.
// The backend is the source of truth; the portal re-queries it on start.
type Session struct {
	Authenticated bool
	TeacherName   string
}

// Anonymous returns the fail-safe unauthenticated session.
func Anonymous() Session {
	return Session{}
}

// Teacher returns an authenticated session for the named teacher.
// PRE: name may be empty when the backend omits teacher_name
// POST: Returns a session with Authenticated set
func Teacher(name string) Session {
	return Session{Authenticated: true, TeacherName: strings.TrimSpace(name)}
}

// CanManageRosters reports whether roster controls may be shown.
// INVARIANT: Session fields are not mutated
func (s Session) CanManageRosters() bool {
	return s.Authenticated
}

// DisplayName returns the label shown in the header for a logged-in teacher.
func (s Session) DisplayName() string {
	if !s.Authenticated {
		return ""
	}
	if s.TeacherName == "" {
		return "Logged in"
	}
	return "Logged in as " + s.TeacherName
}
