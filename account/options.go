package account

import "github.com/hashicorp/go-hclog"

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

// WithDefaultClientID overrides DefaultClientID for NewAuthConfig.
func WithDefaultClientID(id string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withClientID = id
		}
	}
}

// WithDefaultRealm overrides DefaultRealm for NewAuthConfig.
func WithDefaultRealm(realm string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRealm = realm
		}
	}
}

// WithDefaultRedirectURI overrides DefaultRedirectURI for NewAuthConfig.
func WithDefaultRedirectURI(uri string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withRedirectURI = uri
		}
	}
}

// WithDefaultProtocol overrides DefaultProtocol for NewAuthConfig.
func WithDefaultProtocol(protocol string) Option {
	return func(o interface{}) {
		if o, ok := o.(*configOptions); ok {
			o.withProtocol = protocol
		}
	}
}

// WithLogger provides an optional logger for LoadRegistry and ParseRegistry.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		if o, ok := o.(*registryOptions); ok {
			o.withLogger = l
		}
	}
}
