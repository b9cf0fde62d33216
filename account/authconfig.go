package account

import (
	"net/url"

	"github.com/hashicorp/cap-aims/oidc"
)

// Process wide defaults used when an account doesn't provide a value, or when
// there's no account at all (capability probing).
const (
	DefaultClientID    = "alfresco-ios-acs-app"
	DefaultRealm       = "alfresco"
	DefaultRedirectURI = "iosacsapp://aims/auth"
	DefaultProtocol    = "https"
)

// NewAuthConfig derives the identity provider configuration for one
// operation.  With a nil account the config has an empty BaseURL and the
// defaults.  Otherwise the BaseURL is protocol://host[:port] and each of the
// client id, realm, redirect URI and protocol falls back to its default when
// the account leaves it empty.  The redirect URI is always percent-encoded.
//
// It never fails.  Supports the options: WithDefaultClientID,
// WithDefaultRealm, WithDefaultRedirectURI and WithDefaultProtocol.
func NewAuthConfig(a *Account, opt ...Option) oidc.Config {
	opts := getConfigOpts(opt...)
	if a == nil {
		return oidc.Config{
			ClientID:    opts.withClientID,
			Realm:       opts.withRealm,
			RedirectURI: encodeURI(opts.withRedirectURI),
		}
	}
	return oidc.Config{
		BaseURL:     baseURL(orDefault(a.Protocol, opts.withProtocol), a.Host, a.Port),
		ClientID:    orDefault(a.ClientID, opts.withClientID),
		Realm:       orDefault(a.Realm, opts.withRealm),
		RedirectURI: encodeURI(orDefault(a.RedirectURI, opts.withRedirectURI)),
	}
}

func baseURL(protocol, host, port string) string {
	if port == "" {
		return protocol + "://" + host
	}
	return protocol + "://" + host + ":" + port
}

func orDefault(v, d string) string {
	if v == "" {
		return d
	}
	return v
}

// encodeURI percent-encodes the uri unless it's already encoded.
func encodeURI(uri string) string {
	if raw, err := url.QueryUnescape(uri); err == nil && url.QueryEscape(raw) == uri {
		return uri
	}
	return url.QueryEscape(uri)
}

// configOptions is the set of available options for NewAuthConfig
type configOptions struct {
	withClientID    string
	withRealm       string
	withRedirectURI string
	withProtocol    string
}

func configDefaults() configOptions {
	return configOptions{
		withClientID:    DefaultClientID,
		withRealm:       DefaultRealm,
		withRedirectURI: DefaultRedirectURI,
		withProtocol:    DefaultProtocol,
	}
}

// getConfigOpts gets the defaults and applies the opt overrides passed in.
// Empty overrides keep the package default.
func getConfigOpts(opt ...Option) configOptions {
	opts := configDefaults()
	ApplyOpts(&opts, opt...)
	d := configDefaults()
	opts.withClientID = orDefault(opts.withClientID, d.withClientID)
	opts.withRealm = orDefault(opts.withRealm, d.withRealm)
	opts.withRedirectURI = orDefault(opts.withRedirectURI, d.withRedirectURI)
	opts.withProtocol = orDefault(opts.withProtocol, d.withProtocol)
	return opts
}
