package backend

import (
	"errors"
	"fmt"
)

// ErrNetwork matches every *NetworkError via errors.Is.
var ErrNetwork = errors.New("backend unreachable")

// NetworkError means the request never produced an HTTP response.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Is lets callers test errors.Is(err, ErrNetwork).
func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// AuthError is a non-2xx answer to a login attempt.
type AuthError struct {
	Status int
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("login rejected (status %d)", e.Status)
	}
	return fmt.Sprintf("login rejected (status %d): %s", e.Status, e.Detail)
}

// ValidationError is a non-2xx answer to a roster command, typically a full
// activity or a duplicate or missing registration.
type ValidationError struct {
	Status int
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("roster change rejected (status %d)", e.Status)
	}
	return fmt.Sprintf("roster change rejected (status %d): %s", e.Status, e.Detail)
}

// UnknownError covers unexpected statuses and bodies we could not decode.
type UnknownError struct {
	Endpoint string
	Status   int
	Err      error
}

func (e *UnknownError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: unexpected status %d", e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s: status %d: %v", e.Endpoint, e.Status, e.Err)
}

func (e *UnknownError) Unwrap() error { return e.Err }

// Detail returns the server-provided detail carried by err, or "".
func Detail(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Detail
	}
	var valErr *ValidationError
	if errors.As(err, &valErr) {
		return valErr.Detail
	}
	return ""
}
