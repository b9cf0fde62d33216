package session

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-aims/account"
	"github.com/hashicorp/cap-aims/oidc"
	"github.com/hashicorp/cap-aims/store"
)

func wait[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(10 * time.Second):
		require.FailNow(t, "timed out waiting for completion")
		var zero T
		return zero
	}
}

func TestService_WithTestProvider(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	logger := hclog.New(&hclog.LoggerOptions{Level: hclog.Debug, Name: t.Name()})

	tp := oidc.StartTestProvider(t, 0)
	u, err := url.Parse(tp.Addr())
	require.NoError(err)
	acme := &account.Account{
		ID:          "acme",
		Protocol:    u.Scheme,
		Host:        u.Hostname(),
		Port:        u.Port(),
		RedirectURI: oidc.TestLoopbackRedirectURL(t),
	}

	p, err := oidc.NewProvider(oidc.WithLogger(logger))
	require.NoError(err)
	t.Cleanup(p.Done)
	secrets := store.NewMemorySecretStore()
	creds, err := store.NewCredentialStore(secrets, store.WithLogger(logger))
	require.NoError(err)
	svc, err := NewService(p, creds, WithLogger(logger))
	require.NoError(err)
	t.Cleanup(svc.Done)

	probed := make(chan oidc.AuthType, 1)
	svc.ProbeAuthType(acme, func(at oidc.AuthType, err error) {
		assert.NoError(err)
		probed <- at
	})
	assert.Equal(oidc.AuthTypeAIMS, wait(t, probed))

	svc.Update(acme)
	logins := make(chan result, 1)
	svc.Login(oidc.NewTestBrowser(), func(a *account.Account, err error) { logins <- result{a, err} })
	login := wait(t, logins)
	require.NoError(login.err)
	require.Same(acme, login.a)
	require.NotNil(acme.OAuthData)
	assert.Equal(oidc.TestUsername, acme.OAuthData.Payload.Username())
	assert.Equal(oidc.TestSubject, acme.OAuthData.Payload.Subject())
	assert.Equal(int64(oidc.TestAccessTokenExpiresIn), acme.OAuthData.AccessTokenExpiresIn)
	assert.True(acme.OAuthData.Valid())
	firstRefreshToken := acme.OAuthData.RefreshToken
	assert.True(tp.RefreshTokenValid(firstRefreshToken))
	assert.Equal(2, secrets.Len())

	refreshes := make(chan result, 1)
	svc.RefreshSession(acme, func(a *account.Account, err error) { refreshes <- result{a, err} })
	refresh := wait(t, refreshes)
	require.NoError(refresh.err)
	require.Same(acme, refresh.a)
	assert.NotEqual(firstRefreshToken, acme.OAuthData.RefreshToken)
	assert.False(tp.RefreshTokenValid(firstRefreshToken))
	assert.Equal(acme.OAuthData.RefreshToken, creds.LoadCredential(ctx, "acme").RefreshToken)
	assert.Equal(2, creds.LoadSession(ctx, "acme").Generation())
	assert.False(svc.RefreshInProgress())

	logouts := make(chan logoutResult, 1)
	svc.Logout(oidc.NewTestBrowser(), func(ok bool, err error) { logouts <- logoutResult{ok, err} })
	assert.Equal(logoutResult{ok: true}, wait(t, logouts))
	assert.Equal(0, secrets.Len())
	assert.Nil(acme.OAuthData)

	// nothing left to revoke
	svc.Logout(oidc.NewTestBrowser(), func(ok bool, err error) { logouts <- logoutResult{ok, err} })
	assert.Equal(logoutResult{}, wait(t, logouts))

	svc.RefreshSession(acme, func(a *account.Account, err error) { refreshes <- result{a, err} })
	refresh = wait(t, refreshes)
	assert.ErrorIs(refresh.err, oidc.ErrSessionNotFound)
}

func TestService_WithTestProvider_Cancelled(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	tp := oidc.StartTestProvider(t, 0)
	u, err := url.Parse(tp.Addr())
	require.NoError(err)
	acme := &account.Account{
		ID:          "acme",
		Protocol:    u.Scheme,
		Host:        u.Hostname(),
		Port:        u.Port(),
		RedirectURI: oidc.TestLoopbackRedirectURL(t),
	}
	p, err := oidc.NewProvider()
	require.NoError(err)
	t.Cleanup(p.Done)
	creds, err := store.NewCredentialStore(store.NewMemorySecretStore())
	require.NoError(err)
	svc, err := NewService(p, creds)
	require.NoError(err)
	t.Cleanup(svc.Done)
	svc.Update(acme)

	logins := make(chan result, 1)
	svc.Login(oidc.TestCancellingBrowser(), func(a *account.Account, err error) { logins <- result{a, err} })
	assert.Equal(result{}, wait(t, logins))
	assert.Nil(acme.OAuthData)
}
