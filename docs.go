// aims (cap-aims) provides the client side session lifecycle for accounts that
// authenticate against a Keycloak based identity service using the OAuth2
// authorization code flow with PKCE.
//
// Packages:
//
//   - account: account records, the account registry and the auth configuration
//     builder.
//   - store: secret store backends and the per-account credential store.
//   - jwt: best-effort, unverified decoding of access token claims.
//   - oidc: credentials, sessions and the authorization-flow engine.
//   - session: the session orchestrator which owns in-flight login, refresh and
//     logout operations for one device.
//
// See cmd/aims-login for a command line host.
package aims
