package popup

import "errors"

// Messages carried by AuthError
const (
	MessageFailed            = "Authorization failed"
	MessageTimedOut          = "Authorization timed out"
	MessageAlreadyInProgress = "auth_already_in_progress"
)

// AuthError is the rejection of a popup login attempt. Reason is the code
// from the failure marker when the server reported one.
type AuthError struct {
	Message string
	Reason  string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Reason != "" {
		return e.Message + ": " + e.Reason
	}
	return e.Message
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches on Message so errors.Is(err, ErrAuthorizationFailed) holds for
// any failure regardless of reason.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Message == e.Message
}

var (
	ErrAuthorizationFailed = &AuthError{Message: MessageFailed}
	ErrTimedOut            = &AuthError{Message: MessageTimedOut}
	ErrAlreadyInProgress   = &AuthError{Message: MessageAlreadyInProgress}
)

// ReasonOf returns the failure marker reason carried by err, if any
func ReasonOf(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}
	return ""
}
