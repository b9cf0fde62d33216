package oidc

import (
	"fmt"
	"net/url"
	"strings"
)

// realmsPath is where a Keycloak based identity service publishes its realms.
const realmsPath = "/auth/realms/"

// Config is the provider configuration for one operation.  It's a value and
// should be treated as immutable once built (see account.NewAuthConfig).
type Config struct {
	// BaseURL is the identity service's base url: protocol://host[:port]
	BaseURL string

	// ClientID is the relying party id
	ClientID string

	// Realm is the identity service realm which contains the client
	Realm string

	// RedirectURI is the percent-encoded redirect URI.  Use RedirectURL() to
	// get the decoded value.
	RedirectURI string
}

// Issuer returns the realm's issuer url.
func (c Config) Issuer() string {
	return strings.TrimRight(c.BaseURL, "/") + realmsPath + url.PathEscape(c.Realm)
}

// RedirectURL returns the decoded redirect URI.  The http layer encodes it
// again when it's sent to the identity provider.
func (c Config) RedirectURL() (string, error) {
	const op = "oidc.(Config).RedirectURL"
	u, err := url.QueryUnescape(c.RedirectURI)
	if err != nil {
		return "", fmt.Errorf("%s: redirect URI %q is not percent-encoded: %w", op, c.RedirectURI, ErrInvalidParameter)
	}
	return u, nil
}

// Validate the configuration.  It verifies the base url is an http(s) url and
// the client id, realm, and redirect URI are not empty.  It doesn't verify the
// issuer is discoverable.
func (c Config) Validate() error {
	const op = "oidc.(Config).Validate"
	if c.BaseURL == "" {
		return fmt.Errorf("%s: base URL is empty: %w", op, ErrInvalidParameter)
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("%s: base URL %s is invalid: %w", op, c.BaseURL, ErrInvalidParameter)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("%s: base URL %s scheme %q is not http or https: %w", op, c.BaseURL, u.Scheme, ErrInvalidParameter)
	}
	if c.ClientID == "" {
		return fmt.Errorf("%s: client id is empty: %w", op, ErrInvalidParameter)
	}
	if c.Realm == "" {
		return fmt.Errorf("%s: realm is empty: %w", op, ErrInvalidParameter)
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("%s: redirect URI is empty: %w", op, ErrInvalidParameter)
	}
	if _, err := c.RedirectURL(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
