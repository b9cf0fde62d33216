package oidc

import (
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testRedirect = "http://127.0.0.1:8400/callback"

func TestNewSession(t *testing.T) {
	t.Parallel()
	now := time.Unix(1700000000, 0)
	tests := []struct {
		name      string
		expireIn  time.Duration
		redirect  string
		wantErrIs error
	}{
		{name: "valid", expireIn: time.Minute, redirect: testRedirect},
		{name: "zero-expiry", expireIn: 0, redirect: testRedirect, wantErrIs: ErrInvalidParameter},
		{name: "missing-redirect", expireIn: time.Minute, wantErrIs: ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			s, err := NewSession(tt.expireIn, tt.redirect, "https://idp/auth/realms/alfresco", WithNow(func() time.Time { return now }))
			if tt.wantErrIs != nil {
				require.Error(err)
				assert.ErrorIs(err, tt.wantErrIs)
				return
			}
			require.NoError(err)
			assert.NotEmpty(s.ID())
			assert.NotEmpty(s.Nonce())
			assert.NotEqual(s.ID(), s.Nonce())
			assert.Equal(1, s.Generation())
			assert.Equal(now, s.CreatedAt())
			assert.Equal(tt.redirect, s.RedirectURL())
			assert.Equal("https://idp/auth/realms/alfresco", s.Issuer())
			require.NotNil(s.PKCEVerifier())
			assert.False(s.Consumed())
			assert.Empty(s.RefreshToken())

			assert.False(s.IsExpired(WithNow(func() time.Time { return now.Add(30 * time.Second) })))
			assert.True(s.IsExpired(WithNow(func() time.Time { return now.Add(tt.expireIn) })))
		})
	}
}

func TestSession_ConsumeAndNext(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	s, err := NewSession(time.Minute, testRedirect, "https://idp/auth/realms/alfresco")
	require.NoError(err)

	require.NoError(s.consume())
	assert.True(s.Consumed())
	err = s.consume()
	require.Error(err)
	assert.ErrorIs(err, ErrInvalidParameter)

	tk := (&oauth2.Token{AccessToken: "at", RefreshToken: "rt1"}).WithExtra(map[string]interface{}{"id_token": "it1"})
	s.bind(tk)
	assert.Equal(RefreshToken("rt1"), s.RefreshToken())
	assert.Equal(IdToken("it1"), s.IdToken())

	next, err := s.next(time.Now())
	require.NoError(err)
	assert.Equal(2, next.Generation())
	assert.NotEqual(s.ID(), next.ID())
	assert.NotEqual(s.Nonce(), next.Nonce())
	assert.Nil(next.PKCEVerifier())
	assert.False(next.Consumed())
	assert.False(next.IsExpired())
	assert.Equal(s.RefreshToken(), next.RefreshToken())
	assert.Equal(s.IdToken(), next.IdToken())

	// a refresh response without an id_token keeps the previous one
	next.bind(&oauth2.Token{AccessToken: "at2", RefreshToken: "rt2"})
	assert.Equal(RefreshToken("rt2"), next.RefreshToken())
	assert.Equal(IdToken("it1"), next.IdToken())
}

func TestSession_Binary(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	now := time.Unix(1700000000, 0)
	s, err := NewSession(time.Minute, testRedirect, "https://idp/auth/realms/alfresco", WithNow(func() time.Time { return now }))
	require.NoError(err)
	s.bind((&oauth2.Token{RefreshToken: "rt"}).WithExtra(map[string]interface{}{"id_token": "it"}))

	b, err := s.MarshalBinary()
	require.NoError(err)

	var got Session
	require.NoError(got.UnmarshalBinary(b))
	assert.Equal(s.ID(), got.ID())
	assert.Equal(s.Nonce(), got.Nonce())
	assert.Equal(s.Generation(), got.Generation())
	assert.Equal(s.RedirectURL(), got.RedirectURL())
	assert.Equal(s.Issuer(), got.Issuer())
	assert.Equal(s.RefreshToken(), got.RefreshToken())
	assert.Equal(s.IdToken(), got.IdToken())
	assert.True(s.CreatedAt().Equal(got.CreatedAt()))
	assert.Equal(s.PKCEVerifier(), got.PKCEVerifier())
	assert.Equal(s.IsExpired(), got.IsExpired())

	var nilSession *Session
	_, err = nilSession.MarshalBinary()
	assert.ErrorIs(err, ErrNilParameter)
}

func TestSession_UnmarshalBinaryInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
	}{
		{name: "garbage", data: []byte("not cbor")},
		{name: "wrong-version", data: mustCBOR(t, sessionData{Version: 99, ID: "st_1", Nonce: "n_1"})},
		{name: "id-equals-nonce", data: mustCBOR(t, sessionData{Version: sessionVersion, ID: "x", Nonce: "x"})},
		{name: "missing-id", data: mustCBOR(t, sessionData{Version: sessionVersion, Nonce: "n_1"})},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			var s Session
			assert.Error(s.UnmarshalBinary(tt.data))
		})
	}
}

func mustCBOR(t *testing.T, d sessionData) []byte {
	t.Helper()
	b, err := cbor.Marshal(d)
	require.NoError(t, err)
	return b
}
