package oidc

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/oauth2"
)

// sessionVersion is the version of the session's binary encoding.
const sessionVersion = 1

// DefaultSessionExpirySkew defines a default time skew when checking a
// Session's expiration.
const DefaultSessionExpirySkew = 1 * time.Second

// Session represents one exchange with the identity provider: an interactive
// authorization code + PKCE attempt, or a refresh.  It contains the data needed
// to uniquely represent that exchange (id, nonce, PKCE verifier) and the
// refresh_token (and id_token) the exchange produced, so that a later refresh
// can resume without a new interactive flow.
//
// A Session is never used for more than one exchange: the session returned by
// an interactive attempt can be resumed once, and resuming consumes it and
// produces the next generation (see Generation()).
//
// The session's ID() is sent as the oauth "state" parameter.  The ID() and
// Nonce() cannot be equal.
type Session struct {
	id          string
	nonce       string
	verifier    *CodeVerifier
	redirectURL string
	issuer      string
	generation  int

	// expiration is the expiration of the interactive attempt.  It doesn't
	// apply to refreshes.
	expiration time.Time
	createdAt  time.Time

	refreshToken RefreshToken
	idToken      IdToken

	consumed bool
}

// NewSession creates a new Session for an interactive attempt against the
// issuer which must complete within expireIn.  Supports the WithNow option.
func NewSession(expireIn time.Duration, redirectURL, issuer string, opt ...Option) (*Session, error) {
	const op = "oidc.NewSession"
	if expireIn <= 0 {
		return nil, fmt.Errorf("%s: expireIn not greater than zero: %w", op, ErrInvalidParameter)
	}
	if redirectURL == "" {
		return nil, fmt.Errorf("%s: redirect url is empty: %w", op, ErrInvalidParameter)
	}
	opts := getSessionOpts(opt...)
	s, err := newSession(issuer, redirectURL, 1, opts.withNowFunc())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.expiration = s.createdAt.Add(expireIn)
	v, err := NewCodeVerifier()
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create code verifier: %w", op, err)
	}
	s.verifier = v
	return s, nil
}

func newSession(issuer, redirectURL string, generation int, now time.Time) (*Session, error) {
	nonce, err := NewID("n")
	if err != nil {
		return nil, fmt.Errorf("unable to generate a session's nonce: %w", err)
	}
	id, err := NewID("st")
	if err != nil {
		return nil, fmt.Errorf("unable to generate a session's id: %w", err)
	}
	return &Session{
		id:          id,
		nonce:       nonce,
		redirectURL: redirectURL,
		issuer:      issuer,
		generation:  generation,
		createdAt:   now,
	}, nil
}

func (s *Session) ID() string                 { return s.id }           // ID is the session's id, sent as the oauth state
func (s *Session) Nonce() string              { return s.nonce }        // Nonce is the oidc nonce
func (s *Session) RedirectURL() string        { return s.redirectURL }  // RedirectURL is the session's redirect url
func (s *Session) Issuer() string             { return s.issuer }       // Issuer is the issuer of the exchange
func (s *Session) Generation() int            { return s.generation }   // Generation starts at 1 and is incremented by every refresh
func (s *Session) CreatedAt() time.Time       { return s.createdAt }    // CreatedAt is when the session was created
func (s *Session) RefreshToken() RefreshToken { return s.refreshToken } // RefreshToken produced by the session's exchange
func (s *Session) IdToken() IdToken           { return s.idToken }      // IdToken produced by the session's exchange
func (s *Session) Consumed() bool             { return s.consumed }     // Consumed is true once the session was resumed

// PKCEVerifier returns the session's PKCE verifier.  It's nil for sessions
// produced by a refresh.
func (s *Session) PKCEVerifier() *CodeVerifier {
	if s.verifier == nil {
		return nil
	}
	return s.verifier.Copy()
}

// IsExpired returns true if the session's interactive attempt has expired.
// Supports the WithExpirySkew and WithNow options and if no skew is provided
// it will use the DefaultSessionExpirySkew.
func (s *Session) IsExpired(opt ...Option) bool {
	if s.expiration.IsZero() {
		return false
	}
	opts := getSessionOpts(opt...)
	return s.expiration.Before(opts.withNowFunc().Add(opts.withExpirySkew))
}

// consume marks the session used.  It returns an error if the session was
// already consumed.
func (s *Session) consume() error {
	const op = "oidc.(Session).consume"
	if s.consumed {
		return fmt.Errorf("%s: session %s generation %d has already been used: %w", op, s.id, s.generation, ErrInvalidParameter)
	}
	s.consumed = true
	return nil
}

// bind records the tokens produced by the session's exchange.
func (s *Session) bind(tk *oauth2.Token) {
	if tk == nil {
		return
	}
	s.refreshToken = RefreshToken(tk.RefreshToken)
	if idToken, ok := tk.Extra("id_token").(string); ok {
		s.idToken = IdToken(idToken)
	}
}

// next creates the session for the following exchange generation.  The
// refresh_token and id_token carry over until the next exchange replaces
// them.
func (s *Session) next(now time.Time) (*Session, error) {
	n, err := newSession(s.issuer, s.redirectURL, s.generation+1, now)
	if err != nil {
		return nil, err
	}
	n.refreshToken = s.refreshToken
	n.idToken = s.idToken
	return n, nil
}

// sessionData is the session's native CBOR encoding.
type sessionData struct {
	Version      int    `cbor:"1,keyasint"`
	ID           string `cbor:"2,keyasint"`
	Nonce        string `cbor:"3,keyasint"`
	Verifier     string `cbor:"4,keyasint,omitempty"`
	RedirectURL  string `cbor:"5,keyasint"`
	Issuer       string `cbor:"6,keyasint"`
	Generation   int    `cbor:"7,keyasint"`
	CreatedAt    int64  `cbor:"8,keyasint"`
	Expiration   int64  `cbor:"9,keyasint,omitempty"`
	RefreshToken string `cbor:"10,keyasint,omitempty"`
	IdToken      string `cbor:"11,keyasint,omitempty"`
}

// MarshalBinary encodes the session using its native encoding.
func (s *Session) MarshalBinary() ([]byte, error) {
	const op = "oidc.(Session).MarshalBinary"
	if s == nil {
		return nil, fmt.Errorf("%s: session is nil: %w", op, ErrNilParameter)
	}
	d := sessionData{
		Version:      sessionVersion,
		ID:           s.id,
		Nonce:        s.nonce,
		RedirectURL:  s.redirectURL,
		Issuer:       s.issuer,
		Generation:   s.generation,
		CreatedAt:    s.createdAt.Unix(),
		RefreshToken: string(s.refreshToken),
		IdToken:      string(s.idToken),
	}
	if s.verifier != nil {
		d.Verifier = s.verifier.Verifier()
	}
	if !s.expiration.IsZero() {
		d.Expiration = s.expiration.Unix()
	}
	b, err := cbor.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to encode session: %w", op, err)
	}
	return b, nil
}

// UnmarshalBinary decodes a session encoded with MarshalBinary.
func (s *Session) UnmarshalBinary(b []byte) error {
	const op = "oidc.(Session).UnmarshalBinary"
	var d sessionData
	if err := cbor.Unmarshal(b, &d); err != nil {
		return fmt.Errorf("%s: unable to decode session: %w", op, err)
	}
	if d.Version != sessionVersion {
		return fmt.Errorf("%s: unsupported session version %d: %w", op, d.Version, ErrInvalidParameter)
	}
	if d.ID == "" || d.Nonce == "" || d.ID == d.Nonce {
		return fmt.Errorf("%s: session id and nonce are invalid: %w", op, ErrInvalidParameter)
	}
	*s = Session{
		id:           d.ID,
		nonce:        d.Nonce,
		redirectURL:  d.RedirectURL,
		issuer:       d.Issuer,
		generation:   d.Generation,
		createdAt:    time.Unix(d.CreatedAt, 0),
		refreshToken: RefreshToken(d.RefreshToken),
		idToken:      IdToken(d.IdToken),
	}
	if d.Verifier != "" {
		s.verifier = codeVerifierFrom(d.Verifier)
	}
	if d.Expiration != 0 {
		s.expiration = time.Unix(d.Expiration, 0)
	}
	return nil
}

// sessionOptions is the set of available options for Session functions
type sessionOptions struct {
	withExpirySkew time.Duration
	withNowFunc    func() time.Time
}

// sessionDefaults is a handy way to get the defaults at runtime and during unit
// tests.
func sessionDefaults() sessionOptions {
	return sessionOptions{
		withExpirySkew: DefaultSessionExpirySkew,
		withNowFunc:    time.Now,
	}
}

// getSessionOpts gets the session defaults and applies the opt overrides passed
// in
func getSessionOpts(opt ...Option) sessionOptions {
	opts := sessionDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withNowFunc == nil {
		opts.withNowFunc = time.Now
	}
	return opts
}
