package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hashicorp/cap-aims/account"
	"github.com/hashicorp/cap-aims/oidc"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(&out)
	root.SetErr(&errOut)
	err := root.Execute()
	t.Log(errOut.String())
	return out.String(), err
}

func withUIHost(t *testing.T, host oidc.UIHost) {
	t.Helper()
	orig := newUIHost
	newUIHost = func(io.Writer) oidc.UIHost { return host }
	t.Cleanup(func() { newUIHost = orig })
}

func TestLogin_TestProvider(t *testing.T) {
	assert, require := assert.New(t), require.New(t)
	withUIHost(t, oidc.NewTestBrowser())
	dir := t.TempDir()

	out, err := execute(t, "login", testAccountID, "--test-provider", "--store-dir", dir, "--log-level", "debug")
	require.NoError(err)
	var got status
	require.NoError(json.Unmarshal([]byte(out), &got))
	assert.Equal(testAccountID, got.AccountID)
	assert.True(got.LoggedIn)
	assert.Equal(oidc.TestUsername, got.Username)
	assert.Equal(oidc.TestSubject, got.Subject)
	assert.Equal("Bearer", got.TokenType)
	assert.NotNil(got.ExpiresAt)
	assert.False(got.Expired)

	_, err = os.Stat(filepath.Join(dir, "test-credential"))
	require.NoError(err)
	_, err = os.Stat(filepath.Join(dir, "test-session"))
	require.NoError(err)

	out, err = execute(t, "status", testAccountID, "--test-provider", "--store-dir", dir)
	require.NoError(err)
	var again status
	require.NoError(json.Unmarshal([]byte(out), &again))
	assert.Equal(got, again)
}

func TestLogin_Cancelled(t *testing.T) {
	withUIHost(t, oidc.TestCancellingBrowser())
	_, err := execute(t, "login", testAccountID, "--test-provider", "--store", "memory")
	assert.ErrorIs(t, err, errLoginCancelled)
}

func TestCommands_NothingStored(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{name: "refresh", args: []string{"refresh", testAccountID}, wantErr: oidc.ErrSessionNotFound},
		{name: "logout", args: []string{"logout", testAccountID}, wantErr: errNotRevoked},
		{name: "unknown-account", args: []string{"status", "nope"}, wantErr: account.ErrNotFound},
		{name: "unknown-store", args: []string{"status", testAccountID, "--store", "etcd"}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			args := append(tt.args, "--test-provider", "--store-dir", t.TempDir())
			_, err := execute(t, args...)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestProbe_TestProvider(t *testing.T) {
	t.Parallel()
	out, err := execute(t, "probe", testAccountID, "--test-provider", "--store", "memory")
	require.NoError(t, err)
	assert.Equal(t, "aims\n", out)
}

func TestStatus_RegistryAndConfigFile(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	dir := t.TempDir()
	accounts := filepath.Join(dir, "accounts.yaml")
	require.NoError(os.WriteFile(accounts, []byte(`
accounts:
  - id: acme
    host: content.acme.example.com
    port: "8443"
`), 0o600))
	config := filepath.Join(dir, "aims.yaml")
	require.NoError(os.WriteFile(config, []byte("store: memory\naccounts: "+accounts+"\n"), 0o600))

	out, err := execute(t, "status", "acme", "--config", config)
	require.NoError(err)
	var got status
	require.NoError(json.Unmarshal([]byte(out), &got))
	assert.Equal(status{AccountID: "acme"}, got)

	_, err = execute(t, "status", "acme", "--config", filepath.Join(dir, "missing.yaml"))
	assert.Error(err)
}
