/*
oidc is a package for running the OAuth2 authorization code + PKCE flow
against a Keycloak style (AIMS) identity service from a native client.

Primary types provided by the package

* Config: the configuration of one operation: the identity service base url,
client id, realm and the percent-encoded redirect URI.  Config.Issuer() is the
realm's issuer.

* Provider: the authorization-flow engine.  It probes whether a server
requires the federated flow, runs interactive logins with a loopback
redirect listener, refreshes credentials with a Session and ends identity
service sessions.  Every exchange is asynchronous and reports to a Receiver.

* Session: represents one exchange with the identity provider.  It contains
the state, nonce and PKCE verifier of an interactive attempt and the tokens it
produced.  A Session is never used for more than one exchange.

* Credential: the token bundle issued for an account (access_token,
refresh_token, their lifetimes, the session_state and the decoded access_token
claims).

* Error: an engine error carrying an integer code.  IsUserCancelled reports
whether the user dismissed the interactive flow.

Testing

TestProvider is a local identity service which supports the flows used by the
Provider.  NewTestBrowser returns a UIHost which approves every request.
*/
package oidc
