package store

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-aims/jwt"
	"github.com/hashicorp/cap-aims/oidc"
)

// failingStore is a SecretStore whose operations fail for the listed ids.
type failingStore struct {
	*MemorySecretStore
	failPut    map[string]bool
	failGet    map[string]bool
	failDelete map[string]bool
}

var errTestStore = errors.New("store unavailable")

func (s *failingStore) Get(ctx context.Context, id string) ([]byte, error) {
	if s.failGet[id] {
		return nil, errTestStore
	}
	return s.MemorySecretStore.Get(ctx, id)
}

func (s *failingStore) Put(ctx context.Context, data []byte, id string) error {
	if s.failPut[id] {
		return errTestStore
	}
	return s.MemorySecretStore.Put(ctx, data, id)
}

func (s *failingStore) Delete(ctx context.Context, id string) error {
	if s.failDelete[id] {
		return errTestStore
	}
	return s.MemorySecretStore.Delete(ctx, id)
}

func testLogger(buf *bytes.Buffer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Output: buf,
		Level:  hclog.Trace,
	})
}

func testCredential() *oidc.Credential {
	return &oidc.Credential{
		TokenType:             "Bearer",
		AccessToken:           "access",
		AccessTokenExpiresIn:  300,
		RefreshToken:          "refresh",
		RefreshTokenExpiresIn: 1800,
		SessionState:          "state",
		Payload:               jwt.Claims{jwt.ClaimPreferredUsername: jwt.StringValue("alice")},
		IssuedAt:              1700000000,
	}
}

func TestNewCredentialStore(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	_, err := NewCredentialStore(nil)
	require.Error(err)
	assert.ErrorIs(err, ErrNilParameter)

	cs, err := NewCredentialStore(NewMemorySecretStore(), WithLogger(nil))
	require.NoError(err)
	assert.NotNil(cs.logger)
}

func TestCredentialStore_SaveLoad(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	secrets := NewMemorySecretStore()
	cs, err := NewCredentialStore(secrets)
	require.NoError(err)

	assert.Nil(cs.LoadCredential(ctx, "acme"))
	assert.Nil(cs.LoadSession(ctx, "acme"))

	cred := testCredential()
	sess := oidc.TestSession(t, "https://idp.example.com/auth/realms/alfresco", "refresh")
	cs.Save(ctx, "acme", cred, sess)

	_, err = secrets.Get(ctx, "acme-credential")
	require.NoError(err)
	_, err = secrets.Get(ctx, "acme-session")
	require.NoError(err)

	gotCred := cs.LoadCredential(ctx, "acme")
	require.NotNil(gotCred)
	assert.Equal(cred, gotCred)

	gotSess := cs.LoadSession(ctx, "acme")
	require.NotNil(gotSess)
	assert.Equal(sess.ID(), gotSess.ID())
	assert.Equal(sess.Nonce(), gotSess.Nonce())
	assert.Equal(sess.RefreshToken(), gotSess.RefreshToken())
	assert.Equal(sess.Issuer(), gotSess.Issuer())

	// a later save without a session keeps the stored session
	cred2 := testCredential()
	cred2.AccessToken = "access2"
	cs.Save(ctx, "acme", cred2, nil)
	assert.Equal("access2", cs.LoadCredential(ctx, "acme").AccessToken)
	assert.Equal(sess.ID(), cs.LoadSession(ctx, "acme").ID())

	require.NoError(cs.Delete(ctx, "acme"))
	assert.Nil(cs.LoadCredential(ctx, "acme"))
	assert.Nil(cs.LoadSession(ctx, "acme"))
	assert.Equal(0, secrets.Len())
}

func TestCredentialStore_SaveInvalid(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	tests := []struct {
		name      string
		accountID string
		cred      *oidc.Credential
		wantLog   string
	}{
		{name: "empty-account", cred: testCredential(), wantLog: "account id is empty"},
		{name: "nil-credential", accountID: "acme", wantLog: "credential is nil"},
		{
			name:      "unencodable-credential",
			accountID: "acme",
			cred: &oidc.Credential{
				AccessToken: "access",
				Payload:     jwt.Claims{"bad": jwt.NumberValue(posInf())},
			},
			wantLog: "unable to encode credential",
		},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			var buf bytes.Buffer
			secrets := NewMemorySecretStore()
			cs, err := NewCredentialStore(secrets, WithLogger(testLogger(&buf)))
			require.NoError(err)
			cs.Save(ctx, tt.accountID, tt.cred, oidc.TestSession(t, "issuer", "rt"))
			assert.Contains(buf.String(), tt.wantLog)
			assert.Equal(0, secrets.Len())
		})
	}
}

func TestCredentialStore_Failures(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	var buf bytes.Buffer
	secrets := &failingStore{
		MemorySecretStore: NewMemorySecretStore(),
		failPut:           map[string]bool{"acme-session": true},
		failGet:           map[string]bool{"down-credential": true},
		failDelete:        map[string]bool{"acme-credential": true, "acme-session": true},
	}
	cs, err := NewCredentialStore(secrets, WithLogger(testLogger(&buf)))
	require.NoError(err)

	// a failed session write leaves the credential unwritten
	cs.Save(ctx, "acme", testCredential(), oidc.TestSession(t, "issuer", "rt"))
	assert.Contains(buf.String(), "unable to save credential")
	assert.Contains(buf.String(), "credential not written")
	assert.Nil(cs.LoadCredential(ctx, "acme"))
	assert.Nil(cs.LoadSession(ctx, "acme"))

	// a failed credential write after the session write says so
	buf.Reset()
	secrets.failPut["stale-credential"] = true
	cs.Save(ctx, "stale", testCredential(), oidc.TestSession(t, "issuer", "rt"))
	assert.Contains(buf.String(), "stored session is newer than the stored credential")
	assert.NotNil(cs.LoadSession(ctx, "stale"))
	assert.Nil(cs.LoadCredential(ctx, "stale"))

	buf.Reset()
	assert.Nil(cs.LoadCredential(ctx, "down"))
	assert.Contains(buf.String(), "unable to read secret store")

	buf.Reset()
	require.NoError(secrets.MemorySecretStore.Put(ctx, []byte("{not json"), "corrupt-credential"))
	require.NoError(secrets.MemorySecretStore.Put(ctx, []byte("not cbor"), "corrupt-session"))
	assert.Nil(cs.LoadCredential(ctx, "corrupt"))
	assert.Nil(cs.LoadSession(ctx, "corrupt"))
	assert.Contains(buf.String(), "ignoring corrupt credential")
	assert.Contains(buf.String(), "ignoring corrupt session")

	err = cs.Delete(ctx, "acme")
	require.Error(err)
	assert.ErrorIs(err, errTestStore)
	assert.Equal(2, strings.Count(err.Error(), errTestStore.Error()))

	assert.ErrorIs(cs.Delete(ctx, ""), ErrInvalidParameter)
	assert.Nil(cs.LoadCredential(ctx, ""))
}

func posInf() float64 { return math.Inf(1) }
