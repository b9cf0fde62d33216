package oidc

import (
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCodeVerifier(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	v, err := NewCodeVerifier()
	require.NoError(err)
	assert.Len(v.Verifier(), verifierLen)
	assert.Equal(S256, v.Method())

	sum := sha256.Sum256([]byte(v.Verifier()))
	assert.Equal(base64.RawURLEncoding.EncodeToString(sum[:]), v.Challenge())

	v2, err := NewCodeVerifier()
	require.NoError(err)
	assert.NotEqual(v.Verifier(), v2.Verifier())

	c := v.Copy()
	assert.Equal(v, c)
	assert.NotSame(v, c)
}

func TestCreateCodeChallenge(t *testing.T) {
	t.Parallel()
	// RFC 7636 appendix B
	v := codeVerifierFrom("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk")
	tests := []struct {
		name      string
		method    ChallengeMethod
		v         *CodeVerifier
		want      string
		wantErrIs error
	}{
		{name: "s256", method: S256, v: v, want: "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"},
		{name: "plain", method: "plain", v: v, wantErrIs: ErrUnsupportedChallengeMethod},
		{name: "nil-verifier", method: S256, wantErrIs: ErrNilParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			got, err := CreateCodeChallenge(tt.method, tt.v)
			if tt.wantErrIs != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErrIs)
				return
			}
			require.NoError(err)
			assert.Equal(tt.want, got)
			assert.Equal(tt.want, tt.v.Challenge())
		})
	}
}
