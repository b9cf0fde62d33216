package session

import (
	"context"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/cap-aims/account"
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

// WithLogger provides an optional logger.
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch o := o.(type) {
		case *serviceOptions:
			o.withLogger = l
		case *dispatcherOptions:
			o.withLogger = l
		}
	}
}

// WithDispatcher provides an optional Dispatcher which runs the service's
// completions.  The default is a SerialDispatcher owned by the service.
func WithDispatcher(d Dispatcher) Option {
	return func(o interface{}) {
		if o, ok := o.(*serviceOptions); ok {
			o.withDispatcher = d
		}
	}
}

// WithContext provides an optional context which bounds every engine and
// store operation started by the service.
func WithContext(ctx context.Context) Option {
	return func(o interface{}) {
		if o, ok := o.(*serviceOptions); ok {
			o.withContext = ctx
		}
	}
}

// WithAuthConfigOptions provides optional account.NewAuthConfig options,
// which override the default client id, realm, redirect URI and protocol.
func WithAuthConfigOptions(opt ...account.Option) Option {
	return func(o interface{}) {
		if o, ok := o.(*serviceOptions); ok {
			o.withAuthConfigOptions = append(o.withAuthConfigOptions, opt...)
		}
	}
}

// WithQueueSize provides an optional initial capacity for a SerialDispatcher's
// queue.
func WithQueueSize(n int) Option {
	return func(o interface{}) {
		if o, ok := o.(*dispatcherOptions); ok {
			o.withQueueSize = n
		}
	}
}

type serviceOptions struct {
	withLogger            hclog.Logger
	withDispatcher        Dispatcher
	withContext           context.Context
	withAuthConfigOptions []account.Option
}

func serviceDefaults() serviceOptions {
	return serviceOptions{
		withLogger:  hclog.NewNullLogger(),
		withContext: context.Background(),
	}
}

func getServiceOpts(opt ...Option) serviceOptions {
	opts := serviceDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withLogger == nil {
		opts.withLogger = hclog.NewNullLogger()
	}
	if opts.withContext == nil {
		opts.withContext = context.Background()
	}
	return opts
}

type dispatcherOptions struct {
	withLogger    hclog.Logger
	withQueueSize int
}

func dispatcherDefaults() dispatcherOptions {
	return dispatcherOptions{
		withLogger:    hclog.NewNullLogger(),
		withQueueSize: 16,
	}
}

func getDispatcherOpts(opt ...Option) dispatcherOptions {
	opts := dispatcherDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withLogger == nil {
		opts.withLogger = hclog.NewNullLogger()
	}
	return opts
}
