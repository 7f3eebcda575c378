package orchestrators

import (
	"context"

	"go.uber.org/zap"
)

// ExecuteUnregisterStudent removes a student from an activity.
// PRE: Activity and the student email as listed on the roster
// POST: Returns the backend's confirmation message
// INVARIANT: The email is passed through unchanged
func ExecuteUnregisterStudent(ctx context.Context, input RosterInput, deps RosterDeps) (string, error) {
	in, err := input.verbatim()
	if err != nil {
		return "", err
	}
	msg, err := deps.Backend.Unregister(ctx, in.Activity, in.Email)
	if err != nil {
		logOrNop(deps.Log).Info("roster_event", zap.String("event", "unregister_rejected"),
			zap.String("activity", in.Activity), zap.String("email", in.Email), zap.Error(err))
		return "", err
	}
	logOrNop(deps.Log).Info("roster_event", zap.String("event", "student_unregistered"),
		zap.String("activity", in.Activity), zap.String("email", in.Email))
	return msg, nil
}
