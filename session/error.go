package session

import "errors"

var (
	ErrNilParameter = errors.New("nil parameter")

	// ErrNoActiveAccount is delivered to a login completion when the service
	// has no account to authenticate or to attach a credential to.
	ErrNoActiveAccount = errors.New("no active account")
)
