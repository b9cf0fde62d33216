package store

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type which can be used in a
// variadic parameter pattern.
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithLogger provides an optional logger for the CredentialStore.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*credentialStoreOptions); ok {
			o.withLogger = l
		}
	}
}

// WithKeyPrefix provides an optional key prefix for the RedisSecretStore.
func WithKeyPrefix(prefix string) Option {
	return func(o interface{}) {
		if o, ok := o.(*redisOptions); ok {
			o.withKeyPrefix = prefix
		}
	}
}

// WithTTL provides an optional expiry for data written by the
// RedisSecretStore.  Zero means the data doesn't expire.
func WithTTL(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*redisOptions); ok {
			o.withTTL = d
		}
	}
}

type credentialStoreOptions struct {
	withLogger hclog.Logger
}

func credentialStoreDefaults() credentialStoreOptions {
	return credentialStoreOptions{
		withLogger: hclog.NewNullLogger(),
	}
}

func getCredentialStoreOpts(opt ...Option) credentialStoreOptions {
	opts := credentialStoreDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withLogger == nil {
		opts.withLogger = hclog.NewNullLogger()
	}
	return opts
}

type redisOptions struct {
	withKeyPrefix string
	withTTL       time.Duration
}

func redisDefaults() redisOptions {
	return redisOptions{
		withKeyPrefix: DefaultRedisKeyPrefix,
	}
}

func getRedisOpts(opt ...Option) redisOptions {
	opts := redisDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}
