package orchestrators

import (
	"errors"

	"go.uber.org/zap"

	"signup/internal/adapters/backend"
	"signup/internal/domain/activity"
)

// failureText holds the generic messages shown when the backend gives no detail.
type failureText struct {
	rejected string
	network  string
}

var (
	loginFailure      = failureText{rejected: "Login failed", network: "Failed to login. Please try again."}
	logoutFailure     = failureText{rejected: "Logout failed", network: "Failed to logout. Please try again."}
	signupFailure     = failureText{rejected: "An error occurred", network: "Failed to sign up. Please try again."}
	unregisterFailure = failureText{rejected: "An error occurred", network: "Failed to unregister. Please try again."}
)

// userInputErrors are client-side validation failures whose text is shown as is.
var userInputErrors = []error{
	activity.ErrEmptyEmail,
	activity.ErrInvalidEmail,
	activity.ErrEmptyName,
	ErrEmptyCredentials,
}

// message picks the text for a failed operation: the server detail first,
// then a client-side validation message, then the per-operation fallback.
func (f failureText) message(err error) string {
	if d := backend.Detail(err); d != "" {
		return d
	}
	for _, target := range userInputErrors {
		if errors.Is(err, target) {
			return capitalize(target.Error())
		}
	}
	if backend.IsNetwork(err) {
		return f.network
	}
	return f.rejected
}

// LoginFailureMessage returns the text shown for a failed login.
func LoginFailureMessage(err error) string { return loginFailure.message(err) }

// LogoutFailureMessage returns the text shown for a failed logout.
func LogoutFailureMessage(err error) string { return logoutFailure.message(err) }

// RegisterFailureMessage returns the text shown for a failed registration.
func RegisterFailureMessage(err error) string { return signupFailure.message(err) }

// UnregisterFailureMessage returns the text shown for a failed unregistration.
func UnregisterFailureMessage(err error) string { return unregisterFailure.message(err) }

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}

func logOrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}
