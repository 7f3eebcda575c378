package orchestrators

import (
	"context"

	"go.uber.org/zap"

	"signup/internal/adapters/backend"
	"signup/internal/domain/session"
)

// BackendForStatus defines the backend call needed by CheckStatus.
type BackendForStatus interface {
	Status(ctx context.Context) (backend.StatusResult, error)
}

// CheckStatusDeps holds dependencies for CheckStatus.
type CheckStatusDeps struct {
	Backend BackendForStatus
	Log     *zap.Logger
}

// ExecuteCheckStatus asks the backend whether the visitor has a teacher session.
// PRE: none
// POST: Returns the backend's session, or Anonymous on any failure
// INVARIANT: Privilege is never assumed; ambiguity yields Anonymous
func ExecuteCheckStatus(ctx context.Context, deps CheckStatusDeps) session.Session {
	res, err := deps.Backend.Status(ctx)
	if err != nil {
		logOrNop(deps.Log).Warn("auth_event", zap.String("event", "status_check_failed"), zap.Error(err))
		return session.Anonymous()
	}
	if !res.Authenticated {
		return session.Anonymous()
	}
	return session.Teacher(res.TeacherName)
}
