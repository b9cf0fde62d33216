package oidc

import (
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/go-uuid"
)

// idLen is the number of random bytes used for ids.
const idLen = 20

// NewID generates an ID with an optional prefix.  The ID generated is suitable
// for a Session ID, State or Nonce.
func NewID(optionalPrefix string) (string, error) {
	const op = "oidc.NewID"
	b, err := uuid.GenerateRandomBytes(idLen)
	if err != nil {
		return "", fmt.Errorf("%s: unable to generate id: %w", op, ErrIdGeneratorFailed)
	}
	id := base64.RawURLEncoding.EncodeToString(b)
	if optionalPrefix != "" {
		return fmt.Sprintf("%s_%s", optionalPrefix, id), nil
	}
	return id, nil
}
