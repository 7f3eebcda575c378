package orchestrators

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"signup/internal/domain/activity"
)

// BackendForRoster defines the backend calls needed by the roster orchestrators.
type BackendForRoster interface {
	Signup(ctx context.Context, activityName, email string) (string, error)
	Unregister(ctx context.Context, activityName, email string) (string, error)
}

// RosterInput carries input for RegisterStudent and UnregisterStudent.
type RosterInput struct {
	Activity string
	Email    string
}

// RosterDeps holds dependencies for the roster orchestrators.
type RosterDeps struct {
	Backend BackendForRoster
	Log     *zap.Logger
}

// normalized trims typed input and applies the light email check done before
// a signup is sent.
func (in RosterInput) normalized() (RosterInput, error) {
	out := RosterInput{Activity: strings.TrimSpace(in.Activity), Email: strings.TrimSpace(in.Email)}
	if out.Activity == "" {
		return out, activity.ErrEmptyName
	}
	if err := activity.ValidateStudentEmail(out.Email); err != nil {
		return out, err
	}
	return out, nil
}

// verbatim checks that a roster entry is addressed at all. The email is sent
// exactly as the roster lists it, so any entry the backend returned can be
// removed.
func (in RosterInput) verbatim() (RosterInput, error) {
	if strings.TrimSpace(in.Activity) == "" {
		return in, activity.ErrEmptyName
	}
	if in.Email == "" {
		return in, activity.ErrEmptyEmail
	}
	return in, nil
}

// ExecuteRegisterStudent signs a student up for an activity.
// PRE: Activity and a plausible student email
// POST: Returns the backend's confirmation message
// INVARIANT: Capacity and duplicate checks stay with the backend
func ExecuteRegisterStudent(ctx context.Context, input RosterInput, deps RosterDeps) (string, error) {
	in, err := input.normalized()
	if err != nil {
		return "", err
	}
	msg, err := deps.Backend.Signup(ctx, in.Activity, in.Email)
	if err != nil {
		logOrNop(deps.Log).Info("roster_event", zap.String("event", "signup_rejected"),
			zap.String("activity", in.Activity), zap.String("email", in.Email), zap.Error(err))
		return "", err
	}
	logOrNop(deps.Log).Info("roster_event", zap.String("event", "student_registered"),
		zap.String("activity", in.Activity), zap.String("email", in.Email))
	return msg, nil
}
