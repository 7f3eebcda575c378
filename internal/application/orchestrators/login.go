package orchestrators

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"signup/internal/adapters/backend"
	"signup/internal/domain/session"
)

// ErrEmptyCredentials is returned before any call when email or password is blank.
var ErrEmptyCredentials = errors.New("email and password are required")

// BackendForLogin defines the backend call needed by Login.
type BackendForLogin interface {
	Login(ctx context.Context, email, password string) (backend.LoginResult, error)
}

// LoginInput carries input for the login orchestrator.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult carries the result of a successful login.
type LoginResult struct {
	Session session.Session
	Message string
}

// LoginDeps holds dependencies for Login.
type LoginDeps struct {
	Backend BackendForLogin
	Log     *zap.Logger
}

// ExecuteLogin authenticates a teacher against the backend.
// PRE: Email and password as typed
// POST: Returns an authenticated session on success; the session is unchanged on failure
func ExecuteLogin(ctx context.Context, input LoginInput, deps LoginDeps) (LoginResult, error) {
	log := logOrNop(deps.Log)
	email := strings.TrimSpace(input.Email)
	if email == "" || input.Password == "" {
		return LoginResult{}, ErrEmptyCredentials
	}

	res, err := deps.Backend.Login(ctx, email, input.Password)
	if err != nil {
		log.Info("auth_event", zap.String("event", "login_failed"), zap.String("email", email), zap.Error(err))
		return LoginResult{}, err
	}

	log.Info("auth_event", zap.String("event", "login_success"), zap.String("email", email))
	msg := res.Message
	if msg == "" {
		msg = "Login successful"
	}
	return LoginResult{Session: session.Teacher(res.TeacherName), Message: msg}, nil
}
