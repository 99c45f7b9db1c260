package auth

import (
	"errors"
	"fmt"
)

const (
	CodeInvalidCredentials  = "invalid_credentials"
	CodeEmailNotConfirmed   = "email_not_confirmed"
	CodeSessionNotFound     = "session_not_found"
	CodeRefreshTokenInvalid = "refresh_token_invalid"
	CodeSessionExpired      = "session_expired"
	CodeInvalidToken        = "invalid_token"
	CodeProviderUnavailable = "provider_unavailable"
)

// Error is what the provider hands back on failure. Message is always set
// and is safe to show to the person signing in.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

var (
	ErrInvalidCredentials = &Error{Code: CodeInvalidCredentials, Message: "Invalid login credentials"}
	ErrEmailNotConfirmed  = &Error{Code: CodeEmailNotConfirmed, Message: "Email not confirmed"}
	ErrSessionNotFound    = &Error{Code: CodeSessionNotFound, Message: "Session not found"}
	ErrRefreshInvalid     = &Error{Code: CodeRefreshTokenInvalid, Message: "Invalid Refresh Token"}
	ErrSessionExpired     = &Error{Code: CodeSessionExpired, Message: "Session expired"}
	ErrInvalidToken       = &Error{Code: CodeInvalidToken, Message: "Invalid access token"}
)

func unavailable(err error) *Error {
	return &Error{Code: CodeProviderUnavailable, Message: "Authentication service unavailable", Err: err}
}

// CodeOf returns the provider error code carried by err, or "".
func CodeOf(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return ""
}

// MessageOf returns the user-facing message of a provider error. Other
// errors yield their Error text.
func MessageOf(err error) string {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Message
	}
	return err.Error()
}

// IsSessionInvalid reports whether err means the stored session can no
// longer be used and should be treated as "no session".
func IsSessionInvalid(err error) bool {
	switch CodeOf(err) {
	case CodeSessionNotFound, CodeRefreshTokenInvalid, CodeSessionExpired, CodeInvalidToken:
		return true
	}
	return false
}
