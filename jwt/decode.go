package jwt

import (
	"fmt"
	"strings"

	josejwt "gopkg.in/square/go-jose.v2/jwt"
)

// DecodeClaims decodes the payload of a compact JWS into Claims WITHOUT
// verifying its signature.  The signature is verified by the identity
// provider when the token is issued and by resource servers when it's used;
// the claims returned are only suitable for local introspection (displaying a
// username, checking an expiry, etc).
//
// It returns nil if the token is malformed.
func DecodeClaims(token string) Claims {
	c, err := ParseClaims(token)
	if err != nil {
		return nil
	}
	return c
}

// ParseClaims is DecodeClaims which reports why a token couldn't be decoded.
func ParseClaims(token string) (Claims, error) {
	const op = "jwt.ParseClaims"
	token = strings.TrimSpace(token)
	if strings.Count(token, ".") != 2 {
		return nil, fmt.Errorf("%s: token is not a compact JWS: %w", op, ErrMalformedToken)
	}
	parsed, err := josejwt.ParseSigned(token)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to parse token: %s: %w", op, err, ErrMalformedToken)
	}
	raw := map[string]interface{}{}
	if err := parsed.UnsafeClaimsWithoutVerification(&raw); err != nil {
		return nil, fmt.Errorf("%s: unable to decode token payload: %s: %w", op, err, ErrMalformedToken)
	}
	claims := make(Claims, len(raw))
	for k, v := range raw {
		cv, err := FromAny(v)
		if err != nil {
			return nil, fmt.Errorf("%s: claim %q: %w", op, k, err)
		}
		claims[k] = cv
	}
	return claims, nil
}
