package oidc

import "context"

// Receiver receives the asynchronous results of a Provider's exchanges.
// Implementations must be concurrently safe: results are delivered from the
// Provider's goroutines.
type Receiver interface {
	// OnCredentialResult is called once per BeginInteractive or
	// ResumeWithSession.  Either cred or err is non-nil.  The session is the
	// one which should be persisted alongside the credential (it's nil on
	// most failures).
	OnCredentialResult(cred *Credential, err error, s *Session)

	// OnLogoutResult is called once per Revoke.  A nil err means the
	// credential was revoked.
	OnLogoutResult(err error)
}

// UIHost presents the interactive part of a flow to the user.
type UIHost interface {
	// OpenURL directs the user's browser to url.  It may return immediately
	// after launching the browser.  Implementations return an error wrapping
	// ErrUserCancelled if the user dismissed the flow.
	OpenURL(ctx context.Context, url string) error
}

// UIHostFunc is an adapter for using a func as a UIHost
type UIHostFunc func(ctx context.Context, url string) error

// OpenURL calls f(ctx, url)
func (f UIHostFunc) OpenURL(ctx context.Context, url string) error {
	return f(ctx, url)
}
