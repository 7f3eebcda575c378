package orchestrators

import (
	"context"

	"go.uber.org/zap"
)

// BackendForLogout defines the backend call needed by Logout.
type BackendForLogout interface {
	Logout(ctx context.Context) error
}

// LogoutDeps holds dependencies for Logout.
type LogoutDeps struct {
	Backend BackendForLogout
	Log     *zap.Logger
}

// ExecuteLogout ends the backend session.
// POST: On nil error the caller must treat the visitor as Anonymous
func ExecuteLogout(ctx context.Context, deps LogoutDeps) error {
	if err := deps.Backend.Logout(ctx); err != nil {
		logOrNop(deps.Log).Warn("auth_event", zap.String("event", "logout_failed"), zap.Error(err))
		return err
	}
	logOrNop(deps.Log).Info("auth_event", zap.String("event", "logout"))
	return nil
}
