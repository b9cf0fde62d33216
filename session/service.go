package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/cap-aims/account"
	"github.com/hashicorp/cap-aims/jwt"
	"github.com/hashicorp/cap-aims/oidc"
	"github.com/hashicorp/cap-aims/store"
)

// Engine runs the authorization flows.  ProbeAuthType blocks, the other
// operations return immediately and report to the Receiver.
type Engine interface {
	ProbeAuthType(ctx context.Context, cfg oidc.Config) (oidc.AuthType, error)
	BeginInteractive(ctx context.Context, cfg oidc.Config, host oidc.UIHost, r oidc.Receiver)
	ResumeWithSession(ctx context.Context, cfg oidc.Config, s *oidc.Session, r oidc.Receiver)
	Revoke(ctx context.Context, cfg oidc.Config, host oidc.UIHost, cred *oidc.Credential, r oidc.Receiver)
}

var _ Engine = (*oidc.Provider)(nil)

type (
	// LoginCompletion receives the logged in account.  A cancelled login
	// delivers (nil, nil).
	LoginCompletion func(a *account.Account, err error)

	// RefreshCompletion receives the refreshed account.  A cancelled refresh
	// is an error.
	RefreshCompletion func(a *account.Account, err error)

	// LogoutCompletion receives true when the credential was revoked.
	LogoutCompletion func(ok bool, err error)

	// ProbeCompletion receives the server's auth type.
	ProbeCompletion func(t oidc.AuthType, err error)
)

// Service owns the login, refresh and logout operations for one device.  It
// holds the active account, the account with a pending refresh, the current
// credential and session, and one pending completion per kind of operation.
//
// A login and a refresh may be outstanding at the same time.  A login result
// is routed by whether a refresh is in progress when it arrives, not by which
// operation started first.  A second call of the same kind before the first
// completes replaces the pending completion: the superseded completion is
// never invoked.  Each refresh reports to its own receiver, so the result of a
// cancelled or superseded refresh is dropped.
//
// Operations never block.  Completions are run by the service's Dispatcher.
type Service struct {
	engine      Engine
	credentials *store.CredentialStore
	dispatcher  Dispatcher
	logger      hclog.Logger
	configOpts  []account.Option

	ctx    context.Context
	cancel context.CancelFunc
	owned  *SerialDispatcher

	mu                    sync.Mutex
	activeAccount         *account.Account
	accountPendingRefresh *account.Account
	currentCredential     *oidc.Credential
	currentSession        *oidc.Session
	refreshInProgress     bool
	refreshGeneration     uint64
	refreshCancel         context.CancelFunc
	loginFn               LoginCompletion
	refreshFn             RefreshCompletion
	logoutFn              LogoutCompletion
}

var _ oidc.Receiver = (*Service)(nil)

// NewService creates a Service.  Supports the WithLogger, WithDispatcher,
// WithContext and WithAuthConfigOptions options.
func NewService(e Engine, cs *store.CredentialStore, opt ...Option) (*Service, error) {
	const op = "session.NewService"
	if e == nil {
		return nil, fmt.Errorf("%s: engine is nil: %w", op, ErrNilParameter)
	}
	if cs == nil {
		return nil, fmt.Errorf("%s: credential store is nil: %w", op, ErrNilParameter)
	}
	opts := getServiceOpts(opt...)
	s := &Service{
		engine:      e,
		credentials: cs,
		dispatcher:  opts.withDispatcher,
		logger:      opts.withLogger,
		configOpts:  opts.withAuthConfigOptions,
	}
	s.ctx, s.cancel = context.WithCancel(opts.withContext)
	if s.dispatcher == nil {
		s.owned = NewSerialDispatcher(WithLogger(opts.withLogger))
		s.dispatcher = s.owned
	}
	return s, nil
}

// Done cancels the service's engine operations.  A service which owns its
// dispatcher stops it once the completions already queued have run.
func (s *Service) Done() {
	s.cancel()
	if s.owned != nil {
		s.owned.Stop()
	}
}

// Update replaces the active account.  When the account isn't the previous
// active account the current credential becomes the account's OAuthData and
// the current session is dropped.
func (s *Service) Update(a *account.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !a.Is(s.activeAccount) {
		s.currentSession = nil
		s.currentCredential = nil
		if a != nil {
			s.currentCredential = a.OAuthData
		}
	}
	s.activeAccount = a
}

// ActiveAccount returns the account set by the last Update.
func (s *Service) ActiveAccount() *account.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeAccount
}

// CurrentCredential returns the active account's credential from the last
// exchange.
func (s *Service) CurrentCredential() *oidc.Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentCredential
}

// CurrentSession returns the active account's session from the last exchange.
func (s *Service) CurrentSession() *oidc.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSession
}

// RefreshInProgress reports whether a refresh is waiting for its result.
func (s *Service) RefreshInProgress() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshInProgress
}

// ProbeAuthType asks the engine which auth type the account's server
// requires.  A nil account probes with the default configuration.
func (s *Service) ProbeAuthType(a *account.Account, fn ProbeCompletion) {
	cfg := account.NewAuthConfig(a, s.configOpts...)
	go func() {
		t, err := s.engine.ProbeAuthType(s.ctx, cfg)
		if fn == nil {
			return
		}
		s.dispatcher.Dispatch(func() { fn(t, err) })
	}()
}

// Login starts an interactive login for the active account.
func (s *Service) Login(host oidc.UIHost, fn LoginCompletion) {
	const op = "session.(Service).Login"
	s.mu.Lock()
	if s.loginFn != nil {
		s.logger.Warn("superseding pending login completion", "op", op)
	}
	s.loginFn = fn
	active := s.activeAccount
	s.mu.Unlock()

	if active == nil {
		s.completeLogin(nil, fmt.Errorf("%s: %w", op, ErrNoActiveAccount))
		return
	}
	s.engine.BeginInteractive(s.ctx, account.NewAuthConfig(active, s.configOpts...), host, s)
}

// RefreshSession refreshes the account's credential with its persisted
// session.  When there's no persisted session the refresh completes with an
// error wrapping oidc.ErrSessionNotFound and a refresh already in progress is
// left running.
func (s *Service) RefreshSession(a *account.Account, fn RefreshCompletion) {
	const op = "session.(Service).RefreshSession"
	if a == nil {
		if fn != nil {
			err := fmt.Errorf("%s: account is nil: %w", op, ErrNilParameter)
			s.dispatcher.Dispatch(func() { fn(nil, err) })
		}
		return
	}
	sess := s.credentials.LoadSession(s.ctx, a.ID)
	if sess == nil {
		s.logger.Debug("no session to refresh", "op", op, "account_id", a.ID)
		if fn != nil {
			err := fmt.Errorf("%s: account %s: %w", op, a.ID, oidc.ErrSessionNotFound)
			s.dispatcher.Dispatch(func() { fn(nil, err) })
		}
		return
	}

	ctx, cancel := context.WithCancel(s.ctx)
	s.mu.Lock()
	if s.refreshInProgress {
		s.logger.Warn("superseding pending refresh", "op", op, "account_id", a.ID)
	}
	s.stopRefresh()
	s.accountPendingRefresh = a
	s.refreshInProgress = true
	s.refreshFn = fn
	s.refreshCancel = cancel
	r := &refreshReceiver{s: s, generation: s.refreshGeneration, accountID: a.ID, cancel: cancel}
	s.mu.Unlock()

	s.engine.ResumeWithSession(ctx, account.NewAuthConfig(a, s.configOpts...), sess, r)
}

// CancelRefresh cancels the refresh in progress.  Its completion is never
// invoked and its result is dropped.
func (s *Service) CancelRefresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.refreshInProgress {
		s.logger.Debug("cancelling refresh", "op", "session.(Service).CancelRefresh", "account_id", s.accountPendingRefresh.ID)
	}
	s.stopRefresh()
}

// Logout revokes the active account's persisted credential.  When there's
// no persisted credential the logout completes with (false, nil) without
// contacting the identity provider.
func (s *Service) Logout(host oidc.UIHost, fn LogoutCompletion) {
	const op = "session.(Service).Logout"
	s.mu.Lock()
	if s.logoutFn != nil {
		s.logger.Warn("superseding pending logout completion", "op", op)
	}
	s.logoutFn = fn
	s.currentSession = nil
	active := s.activeAccount
	s.mu.Unlock()

	if active == nil {
		s.completeLogout(false, nil)
		return
	}
	cred := s.credentials.LoadCredential(s.ctx, active.ID)
	if cred == nil {
		s.logger.Debug("no credential to revoke", "op", op, "account_id", active.ID)
		s.completeLogout(false, nil)
		return
	}
	s.engine.Revoke(s.ctx, account.NewAuthConfig(active, s.configOpts...), host, cred, s)
}

// SaveCredentials persists the current credential and session for the active
// account when both are known.
func (s *Service) SaveCredentials() {
	s.mu.Lock()
	active, cred, sess := s.activeAccount, s.currentCredential, s.currentSession
	s.mu.Unlock()
	if active == nil || cred == nil || sess == nil {
		return
	}
	s.credentials.Save(s.ctx, active.ID, cred, sess)
}

// OnCredentialResult receives the engine's login results.  A result which
// arrives while a refresh is in progress completes the refresh.
func (s *Service) OnCredentialResult(cred *oidc.Credential, err error, sess *oidc.Session) {
	s.credentialResult(nil, cred, err, sess)
}

// credentialResult handles a login result (r == nil) or the result of the
// refresh r was created for.
func (s *Service) credentialResult(r *refreshReceiver, cred *oidc.Credential, err error, sess *oidc.Session) {
	const op = "session.(Service).OnCredentialResult"
	if err == nil && cred == nil {
		err = fmt.Errorf("%s: engine reported no credential: %w", op, ErrNilParameter)
	}
	if err == nil {
		cred.Payload = jwt.DecodeClaims(cred.AccessToken)
	}

	s.mu.Lock()
	if r != nil && (!s.refreshInProgress || r.generation != s.refreshGeneration) {
		s.mu.Unlock()
		s.logger.Debug("dropping result of a stopped refresh", "op", op, "account_id", r.accountID, "error", err)
		return
	}
	refreshing := s.refreshInProgress
	target := s.activeAccount
	if refreshing {
		target = s.accountPendingRefresh
	}
	if err == nil && target != nil {
		target.OAuthData = cred
		if target.Is(s.activeAccount) {
			s.currentCredential = cred
			s.currentSession = sess
		}
	}
	var login LoginCompletion
	var refresh RefreshCompletion
	if refreshing {
		refresh = s.takeRefresh()
	} else {
		login = s.loginFn
		s.loginFn = nil
	}
	s.mu.Unlock()

	if err != nil {
		s.credentialFailure(refreshing, login, refresh, err)
		return
	}

	var result error
	if target == nil {
		s.logger.Error("credential received without an account", "op", op, "refresh", refreshing)
		result = fmt.Errorf("%s: %w", op, ErrNoActiveAccount)
	} else {
		s.credentials.Save(s.ctx, target.ID, cred, sess)
	}

	switch {
	case refresh != nil:
		s.dispatcher.Dispatch(func() { refresh(target, result) })
	case login != nil:
		s.dispatcher.Dispatch(func() { login(target, result) })
	default:
		s.logger.Warn("credential received without a pending completion", "op", op, "refresh", refreshing)
	}
}

func (s *Service) credentialFailure(refreshing bool, login LoginCompletion, refresh RefreshCompletion, err error) {
	const op = "session.(Service).OnCredentialResult"
	switch {
	case refreshing:
		s.logger.Error("refresh failed", "op", op, "error", err)
		if refresh != nil {
			s.dispatcher.Dispatch(func() { refresh(nil, err) })
		}
	case oidc.IsUserCancelled(err):
		s.logger.Debug("login cancelled", "op", op)
		if login != nil {
			s.dispatcher.Dispatch(func() { login(nil, nil) })
		}
	default:
		s.logger.Error("login failed", "op", op, "error", err)
		if login != nil {
			s.dispatcher.Dispatch(func() { login(nil, err) })
		}
	}
}

// OnLogoutResult receives the engine's logout results.  A successful logout
// deletes the active account's persisted credential and session.
func (s *Service) OnLogoutResult(err error) {
	const op = "session.(Service).OnLogoutResult"
	switch {
	case err == nil:
		s.mu.Lock()
		active := s.activeAccount
		if active != nil {
			active.OAuthData = nil
		}
		s.currentCredential = nil
		s.currentSession = nil
		s.mu.Unlock()
		if active != nil {
			if err := s.credentials.Delete(s.ctx, active.ID); err != nil {
				s.logger.Error("unable to delete credential", "op", op, "account_id", active.ID, "error", err)
			}
		}
		s.completeLogout(true, nil)
	case oidc.IsUserCancelled(err):
		s.completeLogout(false, nil)
	default:
		s.logger.Error("logout failed", "op", op, "error", err)
		s.completeLogout(false, err)
	}
}

func (s *Service) completeLogin(a *account.Account, err error) {
	s.mu.Lock()
	fn := s.loginFn
	s.loginFn = nil
	s.mu.Unlock()
	if fn != nil {
		s.dispatcher.Dispatch(func() { fn(a, err) })
	}
}

func (s *Service) completeLogout(ok bool, err error) {
	s.mu.Lock()
	fn := s.logoutFn
	s.logoutFn = nil
	s.mu.Unlock()
	if fn != nil {
		s.dispatcher.Dispatch(func() { fn(ok, err) })
	}
}

// takeRefresh clears the refresh state and returns the pending refresh
// completion.  A later result from the same refresh is dropped.  The caller
// must hold s.mu.
func (s *Service) takeRefresh() RefreshCompletion {
	fn := s.refreshFn
	s.refreshFn = nil
	s.refreshInProgress = false
	s.accountPendingRefresh = nil
	s.refreshCancel = nil
	s.refreshGeneration++
	return fn
}

// stopRefresh cancels the refresh in progress, if any, and clears its state.
// The caller must hold s.mu.
func (s *Service) stopRefresh() {
	if s.refreshCancel != nil {
		s.refreshCancel()
	}
	s.takeRefresh()
}

// refreshReceiver delivers the result of one refresh.
type refreshReceiver struct {
	s          *Service
	generation uint64
	accountID  string
	cancel     context.CancelFunc
}

var _ oidc.Receiver = (*refreshReceiver)(nil)

func (r *refreshReceiver) OnCredentialResult(cred *oidc.Credential, err error, sess *oidc.Session) {
	r.cancel()
	r.s.credentialResult(r, cred, err, sess)
}

func (r *refreshReceiver) OnLogoutResult(error) {
	r.s.logger.Warn("logout result received for a refresh", "op", "session.(refreshReceiver).OnLogoutResult", "account_id", r.accountID)
}
