package activity

import (
	"errors"
	"sort"
	"strings"
)

// Domain errors
var (
	ErrEmptyName       = errors.New("activity name cannot be empty")
	ErrNegativeMax     = errors.New("max participants cannot be negative")
	ErrEmptyEmail      = errors.New("student email cannot be empty")
	ErrInvalidEmail    = errors.New("student email must contain '@'")
	ErrUnknownActivity = errors.New("activity is not in the catalog")
)

// Activity is a school-offered extracurricular as last reported by the backend.
// The portal never mutates an Activity; it is replaced wholesale on every fetch.
type Activity struct {
	Name            string
	Description     string
	Schedule        string
	MaxParticipants int
	Participants    []string // student emails, backend order
}

// Validate checks if the Activity has valid data.
// PRE: Activity struct is populated
// POST: Returns nil if valid, error otherwise
func (a *Activity) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyName
	}
	if a.MaxParticipants < 0 {
		return ErrNegativeMax
	}
	return nil
}

// SpotsLeft returns the remaining capacity, never below zero.
// The backend enforces capacity; an over-full roster still renders as 0.
// INVARIANT: Activity fields are not mutated
func (a *Activity) SpotsLeft() int {
	left := a.MaxParticipants - len(a.Participants)
	if left < 0 {
		return 0
	}
	return left
}

// IsFull returns true when no spots are left.
func (a *Activity) IsFull() bool {
	return a.SpotsLeft() == 0
}

// Catalog is the full set of activities keyed by name.
type Catalog map[string]Activity

// Names returns the activity names in ascending order.
// Catalog order carries no meaning, so rendering sorts for determinism.
// INVARIANT: Catalog is not mutated
func (c Catalog) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sorted returns the activities ordered by name.
func (c Catalog) Sorted() []Activity {
	out := make([]Activity, 0, len(c))
	for _, name := range c.Names() {
		out = append(out, c[name])
	}
	return out
}

// Lookup returns the named activity.
// PRE: name is non-empty
// POST: Returns ErrUnknownActivity when the catalog has no such activity
func (c Catalog) Lookup(name string) (Activity, error) {
	a, ok := c[name]
	if !ok {
		return Activity{}, ErrUnknownActivity
	}
	return a, nil
}

// ValidateStudentEmail performs the light client-side check done before any
// roster command is sent. The backend remains the authority.
func ValidateStudentEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmptyEmail
	}
	if !strings.Contains(email, "@") {
		return ErrInvalidEmail
	}
	return nil
}
