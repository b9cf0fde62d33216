package oidc

import (
	"fmt"
	"time"

	"github.com/hashicorp/cap-aims/jwt"
)

// DefaultCredentialExpirySkew defines a default time skew when checking a
// Credential's expiration.
const DefaultCredentialExpirySkew = 10 * time.Second

// Credential is the token bundle issued by the identity provider for one
// account.  A Credential is only produced by a successful authorization or
// refresh exchange and is replaced, never partially updated.
type Credential struct {
	TokenType string `json:"token_type"`

	AccessToken string `json:"access_token"`

	// AccessTokenExpiresIn is the access_token lifetime in seconds, relative
	// to IssuedAt.  Zero means the provider didn't say.
	AccessTokenExpiresIn int64 `json:"access_token_expires_in,omitempty"`

	RefreshToken string `json:"refresh_token,omitempty"`

	// RefreshTokenExpiresIn is the refresh_token lifetime in seconds,
	// relative to IssuedAt.  Zero means the provider didn't say (or the
	// refresh token is an offline token which doesn't expire).
	RefreshTokenExpiresIn int64 `json:"refresh_token_expires_in,omitempty"`

	// SessionState is the identity provider's session_state.
	SessionState string `json:"session_state,omitempty"`

	// Payload is the decoded (unverified) access_token claims, when the
	// access_token is a JWT.
	Payload jwt.Claims `json:"payload,omitempty"`

	// IssuedAt is when the credential was received (unix seconds).
	IssuedAt int64 `json:"issued_at,omitempty"`
}

// String redacts the tokens
func (c *Credential) String() string {
	if c == nil {
		return "<nil>"
	}
	return fmt.Sprintf("{TokenType:%s AccessToken:%s RefreshToken:%s AccessTokenExpiresIn:%d RefreshTokenExpiresIn:%d SessionState:%s}",
		c.TokenType,
		AccessToken(c.AccessToken),
		RefreshToken(c.RefreshToken),
		c.AccessTokenExpiresIn,
		c.RefreshTokenExpiresIn,
		c.SessionState,
	)
}

// ExpiresAt returns when the access_token expires.  It returns the zero time
// when the expiry is unknown.
func (c *Credential) ExpiresAt() time.Time {
	if c == nil || c.IssuedAt == 0 || c.AccessTokenExpiresIn == 0 {
		return time.Time{}
	}
	return time.Unix(c.IssuedAt+c.AccessTokenExpiresIn, 0)
}

// RefreshExpiresAt returns when the refresh_token expires.  It returns the zero
// time when the expiry is unknown.
func (c *Credential) RefreshExpiresAt() time.Time {
	if c == nil || c.IssuedAt == 0 || c.RefreshTokenExpiresIn == 0 {
		return time.Time{}
	}
	return time.Unix(c.IssuedAt+c.RefreshTokenExpiresIn, 0)
}

// Expired will return true if the access_token is expired.  An unknown expiry
// is never expired.  Supports the WithExpirySkew and WithNow options.
func (c *Credential) Expired(opt ...Option) bool {
	return expired(c.ExpiresAt(), opt...)
}

// RefreshExpired will return true if the refresh_token is expired.  An unknown
// expiry is never expired.  Supports the WithExpirySkew and WithNow options.
func (c *Credential) RefreshExpired(opt ...Option) bool {
	return expired(c.RefreshExpiresAt(), opt...)
}

// Valid will ensure the credential has an access_token which isn't expired.
func (c *Credential) Valid(opt ...Option) bool {
	if c == nil {
		return false
	}
	if c.AccessToken == "" {
		return false
	}
	return !c.Expired(opt...)
}

func expired(exp time.Time, opt ...Option) bool {
	if exp.IsZero() {
		return false
	}
	opts := getCredentialOpts(opt...)
	return exp.Before(opts.withNowFunc().Add(opts.withExpirySkew))
}

// credentialOptions is the set of options for Credential functions
type credentialOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

func credentialDefaults() credentialOptions {
	return credentialOptions{
		withExpirySkew: DefaultCredentialExpirySkew,
		withNowFunc:    time.Now,
	}
}

func getCredentialOpts(opt ...Option) credentialOptions {
	opts := credentialDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withNowFunc == nil {
		opts.withNowFunc = time.Now
	}
	return opts
}
