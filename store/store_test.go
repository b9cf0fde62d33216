package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestSecretStores(t *testing.T) {
	t.Parallel()
	backends := []struct {
		name string
		new  func(t *testing.T) SecretStore
	}{
		{
			name: "memory",
			new:  func(*testing.T) SecretStore { return NewMemorySecretStore() },
		},
		{
			name: "file",
			new: func(t *testing.T) SecretStore {
				s, err := NewFileSecretStore(filepath.Join(t.TempDir(), "secrets"))
				require.NoError(t, err)
				return s
			},
		},
		{
			name: "redis",
			new: func(t *testing.T) SecretStore {
				_, rdb := testRedis(t)
				s, err := NewRedisSecretStore(rdb)
				require.NoError(t, err)
				return s
			},
		},
	}
	for _, b := range backends {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			assert, require := assert.New(t), require.New(t)
			ctx := context.Background()
			s := b.new(t)

			_, err := s.Get(ctx, "acme-credential")
			require.Error(err)
			assert.ErrorIs(err, ErrNotFound)

			require.NoError(s.Put(ctx, []byte("v1"), "acme-credential"))
			require.NoError(s.Put(ctx, []byte("other"), "other-credential"))
			got, err := s.Get(ctx, "acme-credential")
			require.NoError(err)
			assert.Equal([]byte("v1"), got)

			// last write wins
			require.NoError(s.Put(ctx, []byte("v2"), "acme-credential"))
			got, err = s.Get(ctx, "acme-credential")
			require.NoError(err)
			assert.Equal([]byte("v2"), got)

			require.NoError(s.Delete(ctx, "acme-credential"))
			_, err = s.Get(ctx, "acme-credential")
			assert.ErrorIs(err, ErrNotFound)
			require.NoError(s.Delete(ctx, "acme-credential"))

			got, err = s.Get(ctx, "other-credential")
			require.NoError(err)
			assert.Equal([]byte("other"), got)

			err = s.Put(ctx, []byte("x"), "")
			assert.ErrorIs(err, ErrInvalidParameter)
		})
	}
}

func TestMemorySecretStore_Copies(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	s := NewMemorySecretStore()
	data := []byte("secret")
	require.NoError(s.Put(ctx, data, "id"))
	data[0] = 'X'
	got, err := s.Get(ctx, "id")
	require.NoError(err)
	assert.Equal([]byte("secret"), got)
	got[0] = 'Y'
	again, err := s.Get(ctx, "id")
	require.NoError(err)
	assert.Equal([]byte("secret"), again)
	assert.Equal(1, s.Len())
}

func TestFileSecretStore(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileSecretStore(dir)
	require.NoError(err)

	require.NoError(s.Put(ctx, []byte("x"), "../escape"))
	_, err = os.Stat(filepath.Join(filepath.Dir(dir), "escape"))
	assert.True(os.IsNotExist(err))
	got, err := s.Get(ctx, "../escape")
	require.NoError(err)
	assert.Equal([]byte("x"), got)

	require.NoError(s.Put(ctx, []byte("x"), "acme-session"))
	fi, err := os.Stat(filepath.Join(dir, "acme-session"))
	require.NoError(err)
	assert.Equal(os.FileMode(fileSecretMode), fi.Mode().Perm())

	for _, id := range []string{"", ".", ".."} {
		_, err := s.Get(ctx, id)
		assert.ErrorIs(err, ErrInvalidParameter)
		assert.ErrorIs(s.Delete(ctx, id), ErrInvalidParameter)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(s.Put(cancelled, []byte("x"), "id"), context.Canceled)

	_, err = NewFileSecretStore("")
	assert.ErrorIs(err, ErrInvalidParameter)
}

func TestRedisSecretStore(t *testing.T) {
	t.Parallel()
	assert, require := assert.New(t), require.New(t)
	ctx := context.Background()
	mr, rdb := testRedis(t)

	s, err := NewRedisSecretStore(rdb, WithKeyPrefix("test:"), WithTTL(time.Minute))
	require.NoError(err)
	require.NoError(s.Put(ctx, []byte("v"), "acme-credential"))
	assert.True(mr.Exists("test:acme-credential"))
	assert.Equal(time.Minute, mr.TTL("test:acme-credential"))

	mr.FastForward(2 * time.Minute)
	_, err = s.Get(ctx, "acme-credential")
	assert.ErrorIs(err, ErrNotFound)

	_, err = NewRedisSecretStore(nil)
	assert.ErrorIs(err, ErrNilParameter)
	_, err = NewRedisSecretStore(rdb, WithTTL(-time.Second))
	assert.ErrorIs(err, ErrInvalidParameter)

	mr.Close()
	_, err = s.Get(ctx, "acme-credential")
	require.Error(err)
	assert.NotErrorIs(err, ErrNotFound)
}
