package oidc

import (
	"fmt"

	"golang.org/x/oauth2"
)

// ChallengeMethod represents PKCE code challenge methods as defined by RFC
// 7636.
type ChallengeMethod string

const (
	// S256 is the SHA-256 code challenge method defined in RFC 7636.
	S256 ChallengeMethod = "S256"
)

// verifierLen is the length of a generated code verifier: 32 random octets,
// base64url encoded without padding.
const verifierLen = 43

// CodeVerifier is a PKCE code verifier and its S256 challenge.
type CodeVerifier struct {
	verifier  string
	challenge string
	method    ChallengeMethod
}

// NewCodeVerifier creates a new CodeVerifier (*S256Verifier).
//
// See: https://datatracker.ietf.org/doc/html/rfc7636#section-4.1
func NewCodeVerifier() (*CodeVerifier, error) {
	const op = "oidc.NewCodeVerifier"
	v := &CodeVerifier{
		verifier: oauth2.GenerateVerifier(),
		method:   S256,
	}
	c, err := CreateCodeChallenge(v.method, v)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create code challenge: %w", op, err)
	}
	v.challenge = c
	return v, nil
}

// codeVerifierFrom rebuilds a CodeVerifier from a persisted verifier.
func codeVerifierFrom(verifier string) *CodeVerifier {
	return &CodeVerifier{
		verifier:  verifier,
		challenge: oauth2.S256ChallengeFromVerifier(verifier),
		method:    S256,
	}
}

func (s *CodeVerifier) Verifier() string        { return s.verifier }  // Verifier returns the code verifier
func (s *CodeVerifier) Challenge() string       { return s.challenge } // Challenge returns the code verifier's code challenge
func (s *CodeVerifier) Method() ChallengeMethod { return s.method }    // Method returns the code verifier's challenge method (S256)

// Copy returns a copy of the verifier
func (s *CodeVerifier) Copy() *CodeVerifier {
	return &CodeVerifier{
		verifier:  s.verifier,
		challenge: s.challenge,
		method:    s.method,
	}
}

// CreateCodeChallenge creates a code challenge from the verifier. Supported
// ChallengeMethods: S256
//
// See: https://datatracker.ietf.org/doc/html/rfc7636#section-4.2
func CreateCodeChallenge(method ChallengeMethod, v *CodeVerifier) (string, error) {
	const op = "CreateCodeChallenge"
	if v == nil {
		return "", fmt.Errorf("%s: code verifier is nil: %w", op, ErrNilParameter)
	}
	switch method {
	case S256:
		return oauth2.S256ChallengeFromVerifier(v.verifier), nil
	default:
		return "", fmt.Errorf("%s: %s is invalid: %w", op, method, ErrUnsupportedChallengeMethod)
	}
}
