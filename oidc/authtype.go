package oidc

// AuthType is the kind of authentication a content server requires.
type AuthType int

const (
	// AuthTypeUndefined is returned along with an error when the auth type
	// couldn't be determined.
	AuthTypeUndefined AuthType = iota

	// AuthTypeBasic means the server takes basic (username/password)
	// credentials.
	AuthTypeBasic

	// AuthTypeAIMS means the server requires the federated, browser redirect
	// based, authorization code flow.
	AuthTypeAIMS
)

func (a AuthType) String() string {
	switch a {
	case AuthTypeBasic:
		return "basic"
	case AuthTypeAIMS:
		return "aims"
	default:
		return "undefined"
	}
}
