package oidc

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidParameter           = errors.New("invalid parameter")
	ErrNilParameter               = errors.New("nil parameter")
	ErrInvalidCACert              = errors.New("invalid CA certificate")
	ErrInvalidIssuer              = errors.New("invalid issuer")
	ErrIdGeneratorFailed          = errors.New("id generation failed")
	ErrExpiredState               = errors.New("state is expired")
	ErrResponseStateInvalid       = errors.New("oidc response state")
	ErrIdTokenVerificationFailed  = errors.New("id_token verification failed")
	ErrInvalidNonce               = errors.New("invalid nonce")
	ErrNotFound                   = errors.New("not found")
	ErrLoginFailed                = errors.New("login failed")
	ErrLogoutFailed               = errors.New("logout failed")
	ErrRefreshFailed              = errors.New("refresh failed")
	ErrUnsupportedChallengeMethod = errors.New("unsupported PKCE challenge method")
	ErrSessionNotFound            = errors.New("session not found")

	// ErrUserCancelled is returned by a UIHost when the user dismissed the
	// interactive flow.
	ErrUserCancelled = errors.New("user cancelled")
)

// Well known engine error codes.  Positive codes are HTTP status codes
// returned by the identity provider.
const (
	ErrCodeUnknown            = 0
	ErrCodeNetwork            = -1
	ErrCodeProtocol           = -2
	ErrCodeUserCancelled      = -3
	ErrCodeInvalidResponse    = -4
	ErrCodeInvalidState       = -5
	ErrCodeMissingEndpoint    = -6
	ErrCodeInvalidIdToken     = -7
	ErrCodeCallbackListenFail = -8
)

// Error is an error reported by the authorization-flow engine.  Code is either
// one of the well known ErrCode values or the HTTP status returned by the
// identity provider.
type Error struct {
	Code int

	// OAuthError is the OAuth2 "error" parameter when the provider supplied
	// one.
	OAuthError string

	Msg     string
	Wrapped error
}

// NewError creates a new engine *Error.
func NewError(code int, msg string, wrapped error) *Error {
	return &Error{
		Code:    code,
		Msg:     msg,
		Wrapped: wrapped,
	}
}

// Error satisfies the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	s := fmt.Sprintf("code %d", e.Code)
	if e.OAuthError != "" {
		s = fmt.Sprintf("%s (%s)", s, e.OAuthError)
	}
	if e.Msg != "" {
		s = fmt.Sprintf("%s: %s", s, e.Msg)
	}
	if e.Wrapped != nil {
		s = fmt.Sprintf("%s: %s", s, e.Wrapped.Error())
	}
	return s
}

// Unwrap returns the wrapped error, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Wrapped
}

// IsUserCancelled returns true when err is an engine *Error whose code
// reports the user dismissed the interactive flow.
func IsUserCancelled(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == ErrCodeUserCancelled
	}
	return false
}
