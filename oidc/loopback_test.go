package oidc

import (
	"net/http"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_listenLoopback(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		redirect  string
		wantErrIs error
	}{
		{name: "custom-scheme", redirect: "iosacsapp://aims/auth", wantErrIs: ErrInvalidParameter},
		{name: "https", redirect: "https://127.0.0.1:8400/callback", wantErrIs: ErrInvalidParameter},
		{name: "not-loopback", redirect: "http://example.com:8400/callback", wantErrIs: ErrInvalidParameter},
		{name: "unparseable", redirect: "http://127.0.0.1:%zz/callback", wantErrIs: ErrInvalidParameter},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l, err := listenLoopback(tt.redirect, hclog.NewNullLogger())
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErrIs)
			assert.Nil(t, l)
		})
	}

	t.Run("receives-one-response", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		redirect := TestLoopbackRedirectURL(t)
		l, err := listenLoopback(redirect, hclog.NewNullLogger())
		require.NoError(err)
		defer l.Close()

		resp, err := http.Get(redirect + "?state=st_1&code=c_1")
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(http.StatusOK, resp.StatusCode)

		resp, err = http.Get(redirect + "?state=st_2&code=c_2")
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(http.StatusConflict, resp.StatusCode)

		got := <-l.responses
		assert.Equal(callbackResponse{state: "st_1", code: "c_1"}, got)

		// the same address can't be listened on twice
		_, err = listenLoopback(redirect, hclog.NewNullLogger())
		require.Error(err)
	})

	t.Run("error-response", func(t *testing.T) {
		t.Parallel()
		assert, require := assert.New(t), require.New(t)
		redirect := TestLoopbackRedirectURL(t)
		l, err := listenLoopback(redirect, hclog.NewNullLogger())
		require.NoError(err)
		defer l.Close()

		resp, err := http.Get(redirect + "?state=st_1&error=access_denied&error_description=denied")
		require.NoError(err)
		resp.Body.Close()
		assert.Equal(http.StatusBadRequest, resp.StatusCode)
		assert.Equal(callbackResponse{state: "st_1", err: "access_denied", errDescription: "denied"}, <-l.responses)
	})
}
