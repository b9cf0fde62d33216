package oidc

import (
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"io"
	"log"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"gopkg.in/square/go-jose.v2"
	"gopkg.in/square/go-jose.v2/jwt"
)

// Test provider defaults
const (
	TestRealm                 = "alfresco"
	TestClientID              = "alfresco-ios-acs-app"
	TestSubject               = "f3b2a01c-3d6e-4c9b-9d35-0c1a2b3c4d5e"
	TestUsername              = "user@example.com"
	TestAccessTokenExpiresIn  = 300
	TestRefreshTokenExpiresIn = 1800
)

// TestProvider is a local, plain http, Keycloak style identity service which
// makes writing tests much easier.  It serves a single realm with: discovery,
// an authorization endpoint which approves every request, a token endpoint
// for the authorization_code (with PKCE) and refresh_token grants, a logout
// endpoint and its JWKS.
type TestProvider struct {
	httpServer *httptest.Server

	jwks *jose.JSONWebKeySet

	mu                    sync.Mutex
	realm                 string
	clientID              string
	subject               string
	username              string
	allowedRedirectURIs   []string
	authError             string
	authErrorDescription  string
	omitIDToken           bool
	omitEndSession        bool
	discoveryStatus       int
	accessTokenExpiresIn  int
	refreshTokenExpiresIn int

	// codes are the outstanding authorization codes
	codes map[string]testGrant

	// refreshTokens are the refresh tokens which haven't been used or
	// revoked
	refreshTokens map[string]testGrant

	ecdsaPublicKey  string
	ecdsaPrivateKey string

	t TestingT
}

// testGrant is the authorization a code or refresh token represents.
type testGrant struct {
	clientID      string
	redirectURI   string
	nonce         string
	codeChallenge string
	sessionState  string
}

// Stop stops the running TestProvider.
func (p *TestProvider) Stop() {
	p.httpServer.Close()
}

// StartTestProvider creates a disposable TestProvider.  A zero port picks any
// free port.
func StartTestProvider(t TestingT, port int) *TestProvider {
	t.Helper()

	p := &TestProvider{
		realm:                 TestRealm,
		clientID:              TestClientID,
		subject:               TestSubject,
		username:              TestUsername,
		accessTokenExpiresIn:  TestAccessTokenExpiresIn,
		refreshTokenExpiresIn: TestRefreshTokenExpiresIn,
		codes:                 map[string]testGrant{},
		refreshTokens:         map[string]testGrant{},
		t:                     t,
	}
	p.ecdsaPublicKey, p.ecdsaPrivateKey = TestGenerateKeys(t)
	p.jwks = testJWKS(t, p.ecdsaPublicKey)

	p.httpServer = httptestNewUnstartedServerWithPort(t, p.router(), port)
	p.httpServer.Config.ErrorLog = log.New(io.Discard, "", 0)
	p.httpServer.Start()
	if c, ok := t.(CleanupT); ok {
		c.Cleanup(p.httpServer.Close)
	}
	return p
}

func (p *TestProvider) router() http.Handler {
	r := chi.NewRouter()
	r.Route(realmsPath+"{realm}", func(r chi.Router) {
		r.Use(p.realmOnly)
		r.Get(discoveryPath, p.discovery)
		r.Get("/protocol/openid-connect/auth", p.authorize)
		r.Post("/protocol/openid-connect/token", p.token)
		r.Post("/protocol/openid-connect/logout", p.logout)
		r.Get("/protocol/openid-connect/certs", p.certs)
	})
	return r
}

// SetRealm sets the realm served by the provider.  Requests for other realms
// get a 404.
func (p *TestProvider) SetRealm(realm string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.realm = realm
}

// SetClientID sets the only client id the provider accepts.
func (p *TestProvider) SetClientID(clientID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clientID = clientID
}

// SetAllowedRedirectURIs sets the allowed redirect URIs.  When none are set,
// any loopback http URI is allowed.
func (p *TestProvider) SetAllowedRedirectURIs(uris []string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.allowedRedirectURIs = uris
}

// SetAuthError makes the authorization endpoint respond with the oauth error
// instead of a code.  An empty errorCode restores approving every request.
func (p *TestProvider) SetAuthError(errorCode, errorDescription string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authError = errorCode
	p.authErrorDescription = errorDescription
}

// SetSubject sets the sub and preferred_username claims of issued tokens.
func (p *TestProvider) SetSubject(subject, username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subject = subject
	p.username = username
}

// SetExpiresIn sets the access and refresh token lifetimes in seconds.
func (p *TestProvider) SetExpiresIn(accessToken, refreshToken int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accessTokenExpiresIn = accessToken
	p.refreshTokenExpiresIn = refreshToken
}

// SetDiscoveryStatus makes discovery respond with the status.  Zero restores
// serving the discovery document.
func (p *TestProvider) SetDiscoveryStatus(status int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discoveryStatus = status
}

// OmitIDTokens turns off id_tokens in token responses.
func (p *TestProvider) OmitIDTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitIDToken = true
}

// OmitEndSession removes the end_session_endpoint from discovery.
func (p *TestProvider) OmitEndSession() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.omitEndSession = true
}

// RevokeRefreshTokens invalidates every outstanding refresh token, like an
// identity service session ending.
func (p *TestProvider) RevokeRefreshTokens() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refreshTokens = map[string]testGrant{}
}

// RefreshTokenValid returns true if the refresh token is outstanding.
func (p *TestProvider) RefreshTokenValid(rt string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.refreshTokens[rt]
	return ok
}

// Addr returns the provider's base url.
func (p *TestProvider) Addr() string { return p.httpServer.URL }

// Issuer returns the realm's issuer.
func (p *TestProvider) Issuer() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.issuer()
}

// Config returns a Config for the provider's realm and client with the
// redirect URI.
func (p *TestProvider) Config(redirectURL string) Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Config{
		BaseURL:     p.Addr(),
		ClientID:    p.clientID,
		Realm:       p.realm,
		RedirectURI: url.QueryEscape(redirectURL),
	}
}

// SigningKeys returns the test PEM-encoded keys used to sign tokens.
func (p *TestProvider) SigningKeys() (pub, priv string) {
	return p.ecdsaPublicKey, p.ecdsaPrivateKey
}

func (p *TestProvider) issuer() string {
	return p.Addr() + realmsPath + p.realm
}

func (p *TestProvider) realmOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		p.mu.Lock()
		realm := p.realm
		p.mu.Unlock()
		if chi.URLParam(req, "realm") != realm {
			http.NotFound(w, req)
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (p *TestProvider) discovery(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.discoveryStatus != 0 {
		w.WriteHeader(p.discoveryStatus)
		return
	}
	base := p.issuer() + "/protocol/openid-connect"
	reply := struct {
		Issuer             string   `json:"issuer"`
		AuthEndpoint       string   `json:"authorization_endpoint"`
		TokenEndpoint      string   `json:"token_endpoint"`
		EndSessionEndpoint string   `json:"end_session_endpoint,omitempty"`
		JWKSURI            string   `json:"jwks_uri"`
		Algs               []string `json:"id_token_signing_alg_values_supported"`
		Challenges         []string `json:"code_challenge_methods_supported"`
	}{
		Issuer:             p.issuer(),
		AuthEndpoint:       base + "/auth",
		TokenEndpoint:      base + "/token",
		EndSessionEndpoint: base + "/logout",
		JWKSURI:            base + "/certs",
		Algs:               []string{string(jose.ES256)},
		Challenges:         []string{string(S256)},
	}
	if p.omitEndSession {
		reply.EndSessionEndpoint = ""
	}
	p.writeJSON(w, http.StatusOK, &reply)
}

func (p *TestProvider) authorize(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri")
	if !p.redirectAllowed(redirectURI) {
		http.Error(w, "invalid redirect_uri", http.StatusBadRequest)
		return
	}
	if qv.Get("client_id") != p.clientID {
		http.Error(w, "client not found", http.StatusBadRequest)
		return
	}
	switch {
	case qv.Get("response_type") != "code":
		p.writeAuthErrorResponse(w, req, "unsupported_response_type", "")
		return
	case !scopeContains(qv.Get("scope"), "openid"):
		p.writeAuthErrorResponse(w, req, "invalid_scope", "")
		return
	case qv.Get("state") == "":
		p.writeAuthErrorResponse(w, req, "invalid_request", "missing state parameter")
		return
	case qv.Get("code_challenge_method") != string(S256) || qv.Get("code_challenge") == "":
		p.writeAuthErrorResponse(w, req, "invalid_request", "missing PKCE code challenge")
		return
	case p.authError != "":
		p.writeAuthErrorResponse(w, req, p.authError, p.authErrorDescription)
		return
	}

	code, err := NewID("code")
	require.NoError(p.t, err)
	sessionState, err := NewID("ss")
	require.NoError(p.t, err)
	p.codes[code] = testGrant{
		clientID:      p.clientID,
		redirectURI:   redirectURI,
		nonce:         qv.Get("nonce"),
		codeChallenge: qv.Get("code_challenge"),
		sessionState:  sessionState,
	}

	http.Redirect(w, req, redirectURI+
		"?state="+url.QueryEscape(qv.Get("state"))+
		"&session_state="+url.QueryEscape(sessionState)+
		"&code="+url.QueryEscape(code), http.StatusFound)
}

func (p *TestProvider) token(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if req.FormValue("client_id") != p.clientID {
		p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return
	}

	var g testGrant
	switch req.FormValue("grant_type") {
	case "authorization_code":
		code := req.FormValue("code")
		var ok bool
		g, ok = p.codes[code]
		if !ok {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "unexpected auth code")
			return
		}
		delete(p.codes, code)
		if req.FormValue("redirect_uri") != g.redirectURI {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "incorrect redirect_uri")
			return
		}
		if oauth2.S256ChallengeFromVerifier(req.FormValue("code_verifier")) != g.codeChallenge {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "PKCE verification failed")
			return
		}
	case "refresh_token":
		rt := req.FormValue("refresh_token")
		var ok bool
		g, ok = p.refreshTokens[rt]
		if !ok {
			p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Token is not active")
			return
		}
		delete(p.refreshTokens, rt)
	default:
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "unsupported_grant_type", "bad grant_type")
		return
	}

	rt, err := NewID("rt")
	require.NoError(p.t, err)
	p.refreshTokens[rt] = g

	now := time.Now()
	stdClaims := jwt.Claims{
		Subject:  p.subject,
		Issuer:   p.issuer(),
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(time.Duration(p.accessTokenExpiresIn) * time.Second)),
	}
	accessClaims := stdClaims
	accessClaims.Audience = jwt.Audience{"account"}
	accessToken := TestSignJWT(p.t, p.ecdsaPrivateKey, accessClaims, map[string]interface{}{
		"typ":                "Bearer",
		"azp":                g.clientID,
		"preferred_username": p.username,
		"session_state":      g.sessionState,
	})

	reply := struct {
		AccessToken      string `json:"access_token"`
		TokenType        string `json:"token_type"`
		ExpiresIn        int    `json:"expires_in"`
		RefreshToken     string `json:"refresh_token"`
		RefreshExpiresIn int    `json:"refresh_expires_in"`
		IDToken          string `json:"id_token,omitempty"`
		SessionState     string `json:"session_state"`
		Scope            string `json:"scope"`
	}{
		AccessToken:      accessToken,
		TokenType:        "bearer",
		ExpiresIn:        p.accessTokenExpiresIn,
		RefreshToken:     rt,
		RefreshExpiresIn: p.refreshTokenExpiresIn,
		SessionState:     g.sessionState,
		Scope:            "openid offline_access",
	}
	if !p.omitIDToken {
		idClaims := stdClaims
		idClaims.Audience = jwt.Audience{g.clientID}
		reply.IDToken = TestSignJWT(p.t, p.ecdsaPrivateKey, idClaims, map[string]interface{}{
			"nonce":              g.nonce,
			"preferred_username": p.username,
			"session_state":      g.sessionState,
		})
	}
	p.writeJSON(w, http.StatusOK, &reply)
}

func (p *TestProvider) logout(w http.ResponseWriter, req *http.Request) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if req.FormValue("client_id") != p.clientID {
		p.writeTokenErrorResponse(w, http.StatusUnauthorized, "invalid_client", "unknown client")
		return
	}
	rt := req.FormValue("refresh_token")
	if _, ok := p.refreshTokens[rt]; !ok {
		p.writeTokenErrorResponse(w, http.StatusBadRequest, "invalid_grant", "Invalid refresh token")
		return
	}
	delete(p.refreshTokens, rt)
	w.WriteHeader(http.StatusNoContent)
}

func (p *TestProvider) certs(w http.ResponseWriter, _ *http.Request) {
	p.writeJSON(w, http.StatusOK, p.jwks)
}

func (p *TestProvider) redirectAllowed(redirectURI string) bool {
	if len(p.allowedRedirectURIs) > 0 {
		for _, u := range p.allowedRedirectURIs {
			if u == redirectURI {
				return true
			}
		}
		return false
	}
	u, err := url.Parse(redirectURI)
	if err != nil || u.Scheme != "http" {
		return false
	}
	return isLoopback(u.Hostname())
}

func (p *TestProvider) writeJSON(w http.ResponseWriter, status int, out interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}

func (p *TestProvider) writeAuthErrorResponse(w http.ResponseWriter, req *http.Request, errorCode, errorMessage string) {
	qv := req.URL.Query()

	redirectURI := qv.Get("redirect_uri") +
		"?state=" + url.QueryEscape(qv.Get("state")) +
		"&error=" + url.QueryEscape(errorCode)

	if errorMessage != "" {
		redirectURI += "&error_description=" + url.QueryEscape(errorMessage)
	}

	http.Redirect(w, req, redirectURI, http.StatusFound)
}

func (p *TestProvider) writeTokenErrorResponse(w http.ResponseWriter, statusCode int, errorCode, errorMessage string) {
	body := struct {
		Code string `json:"error"`
		Desc string `json:"error_description,omitempty"`
	}{
		Code: errorCode,
		Desc: errorMessage,
	}
	p.writeJSON(w, statusCode, &body)
}

func scopeContains(scope, want string) bool {
	for _, s := range strings.Fields(scope) {
		if s == want {
			return true
		}
	}
	return false
}

// testJWKS converts a pem-encoded public key into JWKS data suitable for a
// verification endpoint response
func testJWKS(t TestingT, pubKey string) *jose.JSONWebKeySet {
	t.Helper()
	require := require.New(t)

	block, _ := pem.Decode([]byte(pubKey))
	require.NotNil(block)

	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	require.NoError(err)

	return &jose.JSONWebKeySet{
		Keys: []jose.JSONWebKey{
			{
				Key:       pub,
				Algorithm: string(jose.ES256),
				Use:       "sig",
			},
		},
	}
}

// httptestNewUnstartedServerWithPort is roughly the same as
// httptest.NewUnstartedServer() but allows the caller to explicitly choose the
// port if desired.
func httptestNewUnstartedServerWithPort(t TestingT, handler http.Handler, port int) *httptest.Server {
	t.Helper()
	require := require.New(t)

	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))
	l, err := net.Listen("tcp", addr)
	require.NoError(err)

	return &httptest.Server{
		Listener: l,
		Config:   &http.Server{Handler: handler},
	}
}
