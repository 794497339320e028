package auth

import (
	"errors"
	"fmt"
)

// Error codes reported to the popup through the failure marker
const (
	CodeInvalidState        = "invalid_state"
	CodeTokenExchangeFailed = "token_exchange_failed"
	CodeUserInfoFailed      = "userinfo_failed"
	CodeSessionStoreFailed  = "session_store_failed"
	CodeProviderDenied      = "provider_denied"
)

// AuthError is a failed step of the authorization code flow. Code is safe to
// expose to the browser; Err is for logs only.
type AuthError struct {
	Code    string
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth: %s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("auth: %s: %s", e.Code, e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// Is matches any AuthError with the same code, so callers can write
// errors.Is(err, &AuthError{Code: CodeInvalidState}).
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == e.Code
}

func newAuthError(code, message string, err error) *AuthError {
	return &AuthError{Code: code, Message: message, Err: err}
}

// ProviderDenied converts a provider `?error=` redirect into an AuthError.
// The provider's own error code is kept as the message.
func ProviderDenied(providerError, description string) *AuthError {
	msg := providerError
	if description != "" {
		msg += ": " + description
	}
	return &AuthError{Code: CodeProviderDenied, Message: msg}
}

// CodeOf returns the AuthError code carried by err, or "" if there is none
func CodeOf(err error) string {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}
