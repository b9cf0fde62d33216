package account

import (
	"fmt"

	"github.com/hashicorp/cap-aims/oidc"
)

// Account is a content server account.  It's referenced, not owned, by the
// session service which attaches the account's current credential to it.
type Account struct {
	// ID uniquely identifies the account.  Credentials are persisted under
	// it.
	ID string `yaml:"id" validate:"required,excludesall=/\\"`

	// Protocol is the server protocol: http or https.  Defaults to
	// DefaultProtocol.
	Protocol string `yaml:"protocol,omitempty" validate:"omitempty,oneof=http https"`

	Host string `yaml:"host" validate:"required,hostname_rfc1123"`

	// Port is optional.  When it's empty the base url has no port segment.
	Port string `yaml:"port,omitempty" validate:"omitempty,numeric"`

	// Realm, ClientID and RedirectURI fall back to the defaults individually
	// when they're empty.
	Realm       string `yaml:"realm,omitempty"`
	ClientID    string `yaml:"client_id,omitempty"`
	RedirectURI string `yaml:"redirect_uri,omitempty"`

	// OAuthData is the account's current credential.
	OAuthData *oidc.Credential `yaml:"-"`
}

// Is returns true when both accounts have the same ID.
func (a *Account) Is(other *Account) bool {
	if a == nil || other == nil {
		return false
	}
	return a.ID == other.ID
}

// String doesn't include the credential.
func (a *Account) String() string {
	if a == nil {
		return "<nil>"
	}
	return fmt.Sprintf("{ID:%s Protocol:%s Host:%s Port:%s Realm:%s ClientID:%s}", a.ID, a.Protocol, a.Host, a.Port, a.Realm, a.ClientID)
}
