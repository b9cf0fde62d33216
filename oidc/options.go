package oidc

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
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

// WithExpirySkew provides an optional expiry skew duration for: Credential,
// Session
func WithExpirySkew(d time.Duration) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *credentialOptions:
			v.withExpirySkew = d
		case *sessionOptions:
			v.withExpirySkew = d
		}
	}
}

// WithNow provides an optional func for determining the current time for:
// Credential, Session
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *credentialOptions:
			v.withNowFunc = now
		case *sessionOptions:
			v.withNowFunc = now
		}
	}
}

// WithLogger provides an optional logger for the Provider
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withLogger = l
		}
	}
}

// WithScopes provides optional additional scopes for the Provider.  The
// "openid" and "offline_access" scopes are always requested.
func WithScopes(scopes ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withScopes = scopes
		}
	}
}

// WithProviderCA provides an optional CA cert (PEM) for the Provider's http
// client.
func WithProviderCA(cert string) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withProviderCA = cert
		}
	}
}

// WithAttemptExpiry provides an optional duration for how long an
// interactive login attempt may take before it expires.
func WithAttemptExpiry(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withAttemptExpiry = d
		}
	}
}

// WithSupportedSigningAlgs provides optional id_token signing algorithms for
// the Provider.
func WithSupportedSigningAlgs(algs ...string) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withSupportedSigningAlgs = algs
		}
	}
}

// WithHTTPTimeout provides an optional timeout for requests made by the
// Provider's http client.
func WithHTTPTimeout(d time.Duration) Option {
	return func(o interface{}) {
		if o, ok := o.(*providerOptions); ok {
			o.withHTTPTimeout = d
		}
	}
}
