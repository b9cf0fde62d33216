package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"github.com/hashicorp/cap-aims/account"
	"github.com/hashicorp/cap-aims/oidc"
	"github.com/hashicorp/cap-aims/session"
	"github.com/hashicorp/cap-aims/store"
)

// hostRuntime is everything a command needs: the accounts, the stores and a
// session service bound to the command's context.
type hostRuntime struct {
	logger   hclog.Logger
	registry account.Registry
	creds    *store.CredentialStore
	provider *oidc.Provider
	service  *session.Service

	closers []func() error
}

func newHostRuntime(ctx context.Context, v *viper.Viper, stderr io.Writer) (*hostRuntime, error) {
	const op = "main.newHostRuntime"
	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "aims-login",
		Level:  hclog.LevelFromString(v.GetString(keyLogLevel)),
		Output: stderr,
	})
	rt := &hostRuntime{logger: logger}

	if v.GetBool(keyTestProvider) {
		r, stop, err := startTestProvider(logger)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rt.registry = r
		rt.closers = append(rt.closers, func() error { stop(); return nil })
	} else {
		r, err := account.LoadRegistry(v.GetString(keyAccounts), account.WithLogger(logger))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		rt.registry = r
	}

	secrets, err := rt.secretStore(v)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if rt.creds, err = store.NewCredentialStore(secrets, store.WithLogger(logger.Named("store"))); err != nil {
		rt.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	opts := []oidc.Option{
		oidc.WithLogger(logger.Named("oidc")),
		oidc.WithAttemptExpiry(v.GetDuration(keyAttemptExp)),
	}
	if path := v.GetString(keyCAFile); path != "" {
		pem, err := os.ReadFile(path)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("%s: unable to read CA file: %w", op, err)
		}
		opts = append(opts, oidc.WithProviderCA(string(pem)))
	}
	if rt.provider, err = oidc.NewProvider(opts...); err != nil {
		rt.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rt.closers = append(rt.closers, func() error { rt.provider.Done(); return nil })

	if rt.service, err = session.NewService(rt.provider, rt.creds, session.WithLogger(logger.Named("session")), session.WithContext(ctx)); err != nil {
		rt.Close()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	rt.closers = append(rt.closers, func() error { rt.service.Done(); return nil })
	return rt, nil
}

func (rt *hostRuntime) secretStore(v *viper.Viper) (store.SecretStore, error) {
	switch kind := v.GetString(keyStore); kind {
	case "memory":
		return store.NewMemorySecretStore(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: v.GetString(keyRedisAddr)})
		rt.closers = append(rt.closers, client.Close)
		var opts []store.Option
		if prefix := v.GetString(keyRedisPrefix); prefix != "" {
			opts = append(opts, store.WithKeyPrefix(prefix))
		}
		return store.NewRedisSecretStore(client, opts...)
	case "file", "":
		dir := v.GetString(keyStoreDir)
		if dir == "" {
			base, err := os.UserConfigDir()
			if err != nil {
				return nil, fmt.Errorf("unable to find the user config dir, use --store-dir: %w", err)
			}
			dir = filepath.Join(base, "aims-login", "secrets")
		}
		return store.NewFileSecretStore(dir)
	default:
		return nil, fmt.Errorf("unknown store %q: %w", kind, store.ErrInvalidParameter)
	}
}

// Account returns the registered account.
func (rt *hostRuntime) Account(id string) (*account.Account, error) {
	a, err := rt.registry.Account(id)
	if err != nil {
		return nil, err
	}
	if a.OAuthData == nil {
		a.OAuthData = rt.creds.LoadCredential(context.Background(), a.ID)
	}
	return a, nil
}

// Close releases the runtime in reverse order.
func (rt *hostRuntime) Close() error {
	var result *multierror.Error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i](); err != nil {
			result = multierror.Append(result, err)
		}
	}
	rt.closers = nil
	return result.ErrorOrNil()
}
