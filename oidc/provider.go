package oidc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/oauth2"

	"github.com/hashicorp/cap-aims/jwt"
	capHttp "github.com/hashicorp/cap-aims/sdk/http"
)

const (
	// DefaultAttemptExpiry is how long an interactive attempt may take when
	// WithAttemptExpiry isn't provided.
	DefaultAttemptExpiry = 2 * time.Minute

	// DefaultHTTPTimeout is the Provider's http client timeout when
	// WithHTTPTimeout isn't provided.
	DefaultHTTPTimeout = 30 * time.Second

	// ScopeOfflineAccess requests a refresh token usable after the user's
	// browser session ends.
	ScopeOfflineAccess = "offline_access"

	discoveryPath = "/.well-known/openid-configuration"
)

// Provider is the authorization-flow engine: it runs the OAuth2 authorization
// code + PKCE flow, refresh token grants and logouts against a Keycloak style
// identity service.  Every exchange runs in its own goroutine and its result
// is delivered to a Receiver.
//
// See Provider.Done() which must be called to release provider resources.
type Provider struct {
	client        *http.Client
	logger        hclog.Logger
	scopes        []string
	attemptExpiry time.Duration
	algs          []string

	mu sync.Mutex

	// discovered caches the discovery documents by issuer.
	discovered map[string]*gooidc.Provider

	// backgroundCtx is the context used by the provider for background
	// activities like: interactive attempts, refreshes, logouts, etc
	backgroundCtx context.Context

	// backgroundCtxCancel is used to cancel any background activities running
	// in spawned go routines.
	backgroundCtxCancel context.CancelFunc
}

// NewProvider creates a Provider.  Supports the options: WithLogger,
// WithScopes, WithProviderCA, WithAttemptExpiry, WithSupportedSigningAlgs and
// WithHTTPTimeout.  It doesn't make any requests.
func NewProvider(opt ...Option) (*Provider, error) {
	const op = "oidc.NewProvider"
	opts := getProviderOpts(opt...)
	if opts.withAttemptExpiry <= 0 {
		return nil, fmt.Errorf("%s: attempt expiry must be greater than zero: %w", op, ErrInvalidParameter)
	}
	for _, a := range opts.withSupportedSigningAlgs {
		if !supportedAlgs[a] {
			return nil, fmt.Errorf("%s: unsupported signing algorithm %q: %w", op, a, ErrInvalidParameter)
		}
	}
	client, err := capHttp.NewClient(opts.withProviderCA, opts.withHTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create http client: %w: %s", op, ErrInvalidCACert, err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Provider{
		client:              client,
		logger:              opts.withLogger,
		scopes:              opts.withScopes,
		attemptExpiry:       opts.withAttemptExpiry,
		algs:                opts.withSupportedSigningAlgs,
		discovered:          map[string]*gooidc.Provider{},
		backgroundCtx:       ctx,
		backgroundCtxCancel: cancel,
	}, nil
}

// Done with the provider's background resources and must be called for every
// Provider created.  Exchanges still running are reported as cancelled.
func (p *Provider) Done() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.backgroundCtxCancel != nil {
		p.backgroundCtxCancel()
		p.backgroundCtxCancel = nil
	}
}

// ProbeAuthType asks the identity service whether the realm publishes an
// OpenID discovery document.  200 means AuthTypeAIMS, 404 means the server
// only supports basic auth.  Any other response is an *Error.
func (p *Provider) ProbeAuthType(ctx context.Context, cfg Config) (AuthType, error) {
	const op = "oidc.(Provider).ProbeAuthType"
	if err := cfg.Validate(); err != nil {
		return AuthTypeUndefined, NewError(ErrCodeUnknown, op, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.Issuer()+discoveryPath, nil)
	if err != nil {
		return AuthTypeUndefined, NewError(ErrCodeUnknown, op, err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return AuthTypeUndefined, NewError(ErrCodeNetwork, op, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch resp.StatusCode {
	case http.StatusOK:
		return AuthTypeAIMS, nil
	case http.StatusNotFound:
		return AuthTypeBasic, nil
	default:
		return AuthTypeUndefined, NewError(resp.StatusCode, fmt.Sprintf("%s: unexpected discovery response %s", op, resp.Status), nil)
	}
}

// BeginInteractive starts an interactive authorization code + PKCE attempt.
// It returns immediately and the result is delivered to r.OnCredentialResult.
// The attempt listens for the authorization response on the loopback
// redirect URL, directs the user to the authorization endpoint with
// host.OpenURL and ends with the first of: the callback, ctx being cancelled,
// or the attempt expiry.  A cancelled ctx or a host error wrapping
// ErrUserCancelled is reported with ErrCodeUserCancelled.
func (p *Provider) BeginInteractive(ctx context.Context, cfg Config, host UIHost, r Receiver) {
	const op = "oidc.(Provider).BeginInteractive"
	if r == nil {
		p.logger.Error("receiver is nil", "op", op)
		return
	}
	go func() {
		ctx, cancel := p.attemptContext(ctx)
		defer cancel()
		cred, s, err := p.interactive(ctx, cfg, host)
		if err != nil {
			p.logger.Debug("interactive attempt failed", "op", op, "error", err)
		}
		r.OnCredentialResult(cred, err, s)
	}()
}

// ResumeWithSession refreshes the credential with the session's
// refresh_token.  It returns immediately and the result, along with the next
// generation Session, is delivered to r.OnCredentialResult.  The session is
// consumed and can't be resumed again.
func (p *Provider) ResumeWithSession(ctx context.Context, cfg Config, s *Session, r Receiver) {
	const op = "oidc.(Provider).ResumeWithSession"
	if r == nil {
		p.logger.Error("receiver is nil", "op", op)
		return
	}
	go func() {
		ctx, cancel := p.attemptContext(ctx)
		defer cancel()
		cred, next, err := p.resume(ctx, cfg, s)
		if err != nil {
			p.logger.Debug("refresh failed", "op", op, "error", err)
		}
		r.OnCredentialResult(cred, err, next)
	}()
}

// Revoke ends the identity service session the credential belongs to by
// posting its refresh_token to the end_session_endpoint.  It returns
// immediately and the result is delivered to r.OnLogoutResult.
func (p *Provider) Revoke(ctx context.Context, cfg Config, _ UIHost, cred *Credential, r Receiver) {
	const op = "oidc.(Provider).Revoke"
	if r == nil {
		p.logger.Error("receiver is nil", "op", op)
		return
	}
	go func() {
		ctx, cancel := p.attemptContext(ctx)
		defer cancel()
		err := p.revoke(ctx, cfg, cred)
		if err != nil {
			p.logger.Debug("logout failed", "op", op, "error", err)
		}
		r.OnLogoutResult(err)
	}()
}

func (p *Provider) interactive(ctx context.Context, cfg Config, host UIHost) (*Credential, *Session, error) {
	const op = "oidc.(Provider).interactive"
	if host == nil {
		return nil, nil, NewError(ErrCodeUnknown, op, fmt.Errorf("ui host is nil: %w", ErrNilParameter))
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, NewError(ErrCodeUnknown, op, err)
	}
	redirectURL, err := cfg.RedirectURL()
	if err != nil {
		return nil, nil, NewError(ErrCodeUnknown, op, err)
	}
	provider, err := p.discover(ctx, cfg.Issuer())
	if err != nil {
		return nil, nil, err
	}
	s, err := NewSession(p.attemptExpiry, redirectURL, cfg.Issuer())
	if err != nil {
		return nil, nil, NewError(ErrCodeUnknown, op, err)
	}

	l, err := listenLoopback(redirectURL, p.logger)
	if err != nil {
		return nil, nil, NewError(ErrCodeCallbackListenFail, op, err)
	}
	defer l.Close()

	oauth2Config := p.oauth2Config(cfg, provider, redirectURL)
	authURL := oauth2Config.AuthCodeURL(
		s.ID(),
		gooidc.Nonce(s.Nonce()),
		oauth2.S256ChallengeOption(s.verifier.Verifier()),
	)

	openErr := make(chan error, 1)
	go func() {
		openErr <- host.OpenURL(ctx, authURL)
	}()

	timer := time.NewTimer(time.Until(s.expiration))
	defer timer.Stop()

	var resp callbackResponse
	for waiting := true; waiting; {
		select {
		case resp = <-l.responses:
			waiting = false
		case err := <-openErr:
			switch {
			case err == nil:
			case errors.Is(err, ErrUserCancelled):
				return nil, nil, NewError(ErrCodeUserCancelled, "user cancelled the login", err)
			default:
				return nil, nil, NewError(ErrCodeUnknown, fmt.Sprintf("%s: unable to open authorization url", op), err)
			}
		case <-ctx.Done():
			return nil, nil, NewError(ErrCodeUserCancelled, "login attempt cancelled", fmt.Errorf("%w: %w", ErrUserCancelled, ctx.Err()))
		case <-timer.C:
			return nil, nil, NewError(ErrCodeInvalidState, fmt.Sprintf("%s: login attempt expired", op), ErrExpiredState)
		}
	}

	if resp.err != "" {
		return nil, nil, &Error{
			Code:       ErrCodeProtocol,
			OAuthError: resp.err,
			Msg:        resp.errDescription,
		}
	}
	if resp.state != s.ID() {
		return nil, nil, NewError(ErrCodeInvalidState, op, ErrResponseStateInvalid)
	}
	if s.IsExpired() {
		return nil, nil, NewError(ErrCodeInvalidState, op, ErrExpiredState)
	}
	if resp.code == "" {
		return nil, nil, NewError(ErrCodeInvalidResponse, fmt.Sprintf("%s: authorization response is missing the code", op), nil)
	}
	tk, err := oauth2Config.Exchange(
		capHttp.OidcClientContext(ctx, p.client),
		resp.code,
		oauth2.VerifierOption(s.verifier.Verifier()),
	)
	if err != nil {
		return nil, nil, tokenError(op, "unable to exchange auth code with provider", ErrLoginFailed, err)
	}
	if err := p.verifyIdToken(ctx, provider, cfg.ClientID, tk, s.Nonce(), true); err != nil {
		return nil, nil, err
	}
	s.bind(tk)
	return credentialFrom(tk, time.Now()), s, nil
}

func (p *Provider) resume(ctx context.Context, cfg Config, s *Session) (*Credential, *Session, error) {
	const op = "oidc.(Provider).resume"
	if s == nil {
		return nil, nil, NewError(ErrCodeUnknown, op, fmt.Errorf("session is nil: %w", ErrNilParameter))
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, NewError(ErrCodeUnknown, op, err)
	}
	if s.RefreshToken() == "" {
		return nil, nil, NewError(ErrCodeInvalidState, fmt.Sprintf("%s: session has no refresh_token", op), ErrInvalidParameter)
	}
	if err := s.consume(); err != nil {
		return nil, nil, NewError(ErrCodeInvalidState, op, err)
	}
	provider, err := p.discover(ctx, cfg.Issuer())
	if err != nil {
		return nil, nil, err
	}
	oauth2Config := p.oauth2Config(cfg, provider, s.RedirectURL())
	ts := oauth2Config.TokenSource(capHttp.OidcClientContext(ctx, p.client), &oauth2.Token{
		RefreshToken: string(s.RefreshToken()),
	})
	tk, err := ts.Token()
	if err != nil {
		return nil, nil, tokenError(op, "unable to refresh token with provider", ErrRefreshFailed, err)
	}
	if err := p.verifyIdToken(ctx, provider, cfg.ClientID, tk, "", false); err != nil {
		return nil, nil, err
	}
	next, err := s.next(time.Now())
	if err != nil {
		return nil, nil, NewError(ErrCodeUnknown, op, err)
	}
	next.bind(tk)
	return credentialFrom(tk, time.Now()), next, nil
}

func (p *Provider) revoke(ctx context.Context, cfg Config, cred *Credential) error {
	const op = "oidc.(Provider).revoke"
	if cred == nil {
		return NewError(ErrCodeUnknown, op, fmt.Errorf("credential is nil: %w", ErrNilParameter))
	}
	if err := cfg.Validate(); err != nil {
		return NewError(ErrCodeUnknown, op, err)
	}
	provider, err := p.discover(ctx, cfg.Issuer())
	if err != nil {
		return err
	}
	var claims struct {
		EndSessionEndpoint string `json:"end_session_endpoint"`
	}
	if err := provider.Claims(&claims); err != nil || claims.EndSessionEndpoint == "" {
		return NewError(ErrCodeMissingEndpoint, fmt.Sprintf("%s: provider has no end_session_endpoint", op), ErrLogoutFailed)
	}

	form := url.Values{}
	form.Set("client_id", cfg.ClientID)
	form.Set("refresh_token", cred.RefreshToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claims.EndSessionEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return NewError(ErrCodeUnknown, op, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if cred.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+cred.AccessToken)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return NewError(errorCode(err), op, err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		e := NewError(resp.StatusCode, fmt.Sprintf("%s: logout response %s", op, resp.Status), ErrLogoutFailed)
		var oauthErr struct {
			Error            string `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &oauthErr) == nil && oauthErr.Error != "" {
			e.OAuthError = oauthErr.Error
			if oauthErr.ErrorDescription != "" {
				e.Msg = fmt.Sprintf("%s: %s", e.Msg, oauthErr.ErrorDescription)
			}
		}
		return e
	}
	return nil
}

// discover returns the issuer's discovery document, making a request to the
// issuer the first time.
func (p *Provider) discover(ctx context.Context, issuer string) (*gooidc.Provider, error) {
	const op = "oidc.(Provider).discover"
	p.mu.Lock()
	provider, ok := p.discovered[issuer]
	p.mu.Unlock()
	if ok {
		return provider, nil
	}
	provider, err := gooidc.NewProvider(capHttp.OidcClientContext(ctx, p.client), issuer)
	if err != nil {
		return nil, NewError(errorCode(err), fmt.Sprintf("%s: unable to discover issuer %s", op, issuer), fmt.Errorf("%w: %w", ErrInvalidIssuer, err))
	}
	p.mu.Lock()
	p.discovered[issuer] = provider
	p.mu.Unlock()
	return provider, nil
}

func (p *Provider) oauth2Config(cfg Config, provider *gooidc.Provider, redirectURL string) *oauth2.Config {
	scopes := []string{gooidc.ScopeOpenID, ScopeOfflineAccess}
	for _, sc := range p.scopes {
		if sc != gooidc.ScopeOpenID && sc != ScopeOfflineAccess {
			scopes = append(scopes, sc)
		}
	}
	endpoint := provider.Endpoint()
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	return &oauth2.Config{
		ClientID:    cfg.ClientID,
		RedirectURL: redirectURL,
		Endpoint:    endpoint,
		Scopes:      scopes,
	}
}

// verifyIdToken verifies the token's id_token signature, issuer and audience.
// When a nonce is provided it must match the id_token's nonce.
func (p *Provider) verifyIdToken(ctx context.Context, provider *gooidc.Provider, clientID string, tk *oauth2.Token, nonce string, required bool) error {
	const op = "oidc.(Provider).verifyIdToken"
	raw, ok := tk.Extra("id_token").(string)
	if !ok || raw == "" {
		if required {
			return NewError(ErrCodeInvalidIdToken, fmt.Sprintf("%s: id_token is missing from the token response", op), ErrIdTokenVerificationFailed)
		}
		return nil
	}
	verifier := provider.Verifier(&gooidc.Config{
		ClientID:             clientID,
		SupportedSigningAlgs: p.algs,
	})
	idToken, err := verifier.Verify(capHttp.OidcClientContext(ctx, p.client), raw)
	if err != nil {
		return NewError(ErrCodeInvalidIdToken, op, fmt.Errorf("%w: %w", ErrIdTokenVerificationFailed, err))
	}
	if nonce != "" && idToken.Nonce != nonce {
		return NewError(ErrCodeInvalidIdToken, op, ErrInvalidNonce)
	}
	return nil
}

// attemptContext returns a context which is cancelled with either ctx or the
// provider's background context.
func (p *Provider) attemptContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.backgroundCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// credentialFrom builds a Credential from a token response received at now.
func credentialFrom(tk *oauth2.Token, now time.Time) *Credential {
	c := &Credential{
		TokenType:             tk.Type(),
		AccessToken:           tk.AccessToken,
		AccessTokenExpiresIn:  extraInt64(tk, "expires_in"),
		RefreshToken:          tk.RefreshToken,
		RefreshTokenExpiresIn: extraInt64(tk, "refresh_expires_in"),
		IssuedAt:              now.Unix(),
		Payload:               jwt.DecodeClaims(tk.AccessToken),
	}
	if c.AccessTokenExpiresIn == 0 && !tk.Expiry.IsZero() {
		c.AccessTokenExpiresIn = int64(tk.Expiry.Sub(now).Round(time.Second) / time.Second)
	}
	if s, ok := tk.Extra("session_state").(string); ok {
		c.SessionState = s
	}
	return c
}

func extraInt64(tk *oauth2.Token, key string) int64 {
	switch v := tk.Extra(key).(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// tokenError converts a token endpoint failure to an *Error, keeping the
// provider's http status and oauth error.
func tokenError(op, msg string, sentinel, err error) *Error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		e := &Error{
			Code:       ErrCodeProtocol,
			OAuthError: re.ErrorCode,
			Msg:        fmt.Sprintf("%s: %s", op, msg),
			Wrapped:    fmt.Errorf("%w: %w", sentinel, err),
		}
		if re.Response != nil {
			e.Code = re.Response.StatusCode
		}
		if re.ErrorDescription != "" {
			e.Msg = fmt.Sprintf("%s: %s", e.Msg, re.ErrorDescription)
		}
		return e
	}
	return NewError(errorCode(err), fmt.Sprintf("%s: %s", op, msg), fmt.Errorf("%w: %w", sentinel, err))
}

// errorCode classifies a transport failure.
func errorCode(err error) int {
	var netErr net.Error
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.Canceled):
		return ErrCodeUserCancelled
	case errors.As(err, &urlErr), errors.As(err, &netErr):
		return ErrCodeNetwork
	default:
		return ErrCodeProtocol
	}
}

var supportedAlgs = map[string]bool{
	gooidc.RS256: true,
	gooidc.RS384: true,
	gooidc.RS512: true,
	gooidc.ES256: true,
	gooidc.ES384: true,
	gooidc.ES512: true,
	gooidc.PS256: true,
	gooidc.PS384: true,
	gooidc.PS512: true,
}

// providerOptions is the set of available options for the Provider
type providerOptions struct {
	withLogger               hclog.Logger
	withScopes               []string
	withProviderCA           string
	withAttemptExpiry        time.Duration
	withSupportedSigningAlgs []string
	withHTTPTimeout          time.Duration
}

// providerDefaults is a handy way to get the defaults at runtime and during
// unit tests.
func providerDefaults() providerOptions {
	return providerOptions{
		withLogger:               hclog.NewNullLogger(),
		withAttemptExpiry:        DefaultAttemptExpiry,
		withSupportedSigningAlgs: []string{gooidc.RS256, gooidc.ES256},
		withHTTPTimeout:          DefaultHTTPTimeout,
	}
}

// getProviderOpts gets the provider defaults and applies the opt overrides
// passed in
func getProviderOpts(opt ...Option) providerOptions {
	opts := providerDefaults()
	ApplyOpts(&opts, opt...)
	if opts.withLogger == nil {
		opts.withLogger = hclog.NewNullLogger()
	}
	if len(opts.withSupportedSigningAlgs) == 0 {
		opts.withSupportedSigningAlgs = []string{gooidc.RS256, gooidc.ES256}
	}
	return opts
}
