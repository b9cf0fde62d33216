package jwt

import "errors"

var (
	// ErrInvalidClaims is returned when claims can't be represented as a
	// Claims value.
	ErrInvalidClaims = errors.New("invalid claims")

	// ErrMalformedToken is returned when a token isn't a compact JWS.
	ErrMalformedToken = errors.New("malformed token")
)
