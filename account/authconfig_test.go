package account

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hashicorp/cap-aims/oidc"
)

func TestNewAuthConfig(t *testing.T) {
	t.Parallel()
	encodedDefault := "iosacsapp%3A%2F%2Faims%2Fauth"
	tests := []struct {
		name string
		a    *Account
		opt  []Option
		want oidc.Config
	}{
		{
			name: "no-account",
			want: oidc.Config{
				ClientID:    DefaultClientID,
				Realm:       DefaultRealm,
				RedirectURI: encodedDefault,
			},
		},
		{
			name: "host-only",
			a:    &Account{ID: "acme", Host: "acme.example.com"},
			want: oidc.Config{
				BaseURL:     "https://acme.example.com",
				ClientID:    DefaultClientID,
				Realm:       DefaultRealm,
				RedirectURI: encodedDefault,
			},
		},
		{
			name: "port",
			a:    &Account{ID: "acme", Protocol: "http", Host: "localhost", Port: "8080"},
			want: oidc.Config{
				BaseURL:     "http://localhost:8080",
				ClientID:    DefaultClientID,
				Realm:       DefaultRealm,
				RedirectURI: encodedDefault,
			},
		},
		{
			name: "all-fields",
			a: &Account{
				ID:          "acme",
				Protocol:    "https",
				Host:        "acme.example.com",
				Port:        "8443",
				Realm:       "acme",
				ClientID:    "acme-app",
				RedirectURI: "http://127.0.0.1:8400/callback",
			},
			want: oidc.Config{
				BaseURL:     "https://acme.example.com:8443",
				ClientID:    "acme-app",
				Realm:       "acme",
				RedirectURI: "http%3A%2F%2F127.0.0.1%3A8400%2Fcallback",
			},
		},
		{
			name: "already-encoded-redirect",
			a:    &Account{ID: "acme", Host: "acme.example.com", RedirectURI: encodedDefault},
			want: oidc.Config{
				BaseURL:     "https://acme.example.com",
				ClientID:    DefaultClientID,
				Realm:       DefaultRealm,
				RedirectURI: encodedDefault,
			},
		},
		{
			name: "default-overrides",
			a:    &Account{ID: "acme", Host: "acme.example.com"},
			opt: []Option{
				WithDefaultClientID("cli"),
				WithDefaultRealm("r"),
				WithDefaultRedirectURI("http://localhost:9000/cb"),
				WithDefaultProtocol("http"),
			},
			want: oidc.Config{
				BaseURL:     "http://acme.example.com",
				ClientID:    "cli",
				Realm:       "r",
				RedirectURI: "http%3A%2F%2Flocalhost%3A9000%2Fcb",
			},
		},
		{
			name: "empty-overrides-keep-defaults",
			opt:  []Option{WithDefaultClientID(""), WithDefaultRealm(""), nil},
			want: oidc.Config{
				ClientID:    DefaultClientID,
				Realm:       DefaultRealm,
				RedirectURI: encodedDefault,
			},
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert := assert.New(t)
			got := NewAuthConfig(tt.a, tt.opt...)
			assert.Equal(tt.want, got)
			redirect, err := got.RedirectURL()
			assert.NoError(err)
			assert.NotContains(redirect, "%3A")
		})
	}
}

func Test_encodeURI(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	raw := "iosacsapp://aims/auth"
	once := encodeURI(raw)
	assert.Equal("iosacsapp%3A%2F%2Faims%2Fauth", once)
	assert.Equal(once, encodeURI(once))
	assert.Equal("plain", encodeURI("plain"))
	assert.Equal("a+b", encodeURI("a b"))
}

func TestAccount_Is(t *testing.T) {
	t.Parallel()
	assert := assert.New(t)
	a := &Account{ID: "acme", Host: "a.example.com"}
	b := &Account{ID: "acme", Host: "b.example.com"}
	c := &Account{ID: "other", Host: "a.example.com"}
	assert.True(a.Is(b))
	assert.False(a.Is(c))
	assert.False(a.Is(nil))
	var nilAccount *Account
	assert.False(nilAccount.Is(a))
	assert.Equal("<nil>", nilAccount.String())
	a.OAuthData = &oidc.Credential{AccessToken: "secret"}
	assert.NotContains(a.String(), "secret")
}
