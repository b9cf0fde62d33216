package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"github.com/hashicorp/go-multierror"

	"github.com/hashicorp/cap-aims/oidc"
)

const (
	credentialSuffix = "-credential"
	sessionSuffix    = "-session"
)

// CredentialKey is the identifier an account's credential is stored under.
func CredentialKey(accountID string) string { return accountID + credentialSuffix }

// SessionKey is the identifier an account's session is stored under.
func SessionKey(accountID string) string { return accountID + sessionSuffix }

// CredentialStore persists an account's credential and session pair in a
// SecretStore.  The credential is stored as JSON and the session with its
// native binary encoding.
//
// Failures are logged and never returned by Save and the Load functions: a
// credential stays valid in memory for the life of the process whether it's
// persisted or not.
type CredentialStore struct {
	secrets SecretStore
	logger  hclog.Logger
}

// NewCredentialStore creates a CredentialStore.  Supports the WithLogger
// option.
func NewCredentialStore(s SecretStore, opt ...Option) (*CredentialStore, error) {
	const op = "store.NewCredentialStore"
	if s == nil {
		return nil, fmt.Errorf("%s: secret store is nil: %w", op, ErrNilParameter)
	}
	opts := getCredentialStoreOpts(opt...)
	return &CredentialStore{
		secrets: s,
		logger:  opts.withLogger,
	}, nil
}

// Save writes the account's session and then its credential.  A nil session
// writes only the credential.  If either can't be encoded, or the session
// can't be written, nothing is written.
func (cs *CredentialStore) Save(ctx context.Context, accountID string, cred *oidc.Credential, s *oidc.Session) {
	const op = "store.(CredentialStore).Save"
	if err := cs.save(ctx, accountID, cred, s); err != nil {
		cs.logger.Error("unable to save credential", "op", op, "account_id", accountID, "error", err)
	}
}

func (cs *CredentialStore) save(ctx context.Context, accountID string, cred *oidc.Credential, s *oidc.Session) error {
	if accountID == "" {
		return fmt.Errorf("account id is empty: %w", ErrInvalidParameter)
	}
	if cred == nil {
		return fmt.Errorf("credential is nil: %w", ErrNilParameter)
	}
	credData, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("unable to encode credential: %w", err)
	}
	var sessionData []byte
	if s != nil {
		if sessionData, err = s.MarshalBinary(); err != nil {
			return fmt.Errorf("unable to encode session: %w", err)
		}
	}

	// Session before credential.  A failed session write leaves the stored
	// pair as it was.
	if sessionData != nil {
		if err := cs.secrets.Put(ctx, sessionData, SessionKey(accountID)); err != nil {
			return fmt.Errorf("unable to write session, credential not written: %w", err)
		}
	}
	if err := cs.secrets.Put(ctx, credData, CredentialKey(accountID)); err != nil {
		if sessionData != nil {
			return fmt.Errorf("unable to write credential, stored session is newer than the stored credential: %w", err)
		}
		return fmt.Errorf("unable to write credential: %w", err)
	}
	return nil
}

// LoadCredential returns the account's credential.  It returns nil when
// there's no credential or it can't be decoded.
func (cs *CredentialStore) LoadCredential(ctx context.Context, accountID string) *oidc.Credential {
	const op = "store.(CredentialStore).LoadCredential"
	b, ok := cs.load(ctx, op, CredentialKey(accountID), accountID)
	if !ok {
		return nil
	}
	var cred oidc.Credential
	if err := json.Unmarshal(b, &cred); err != nil {
		cs.logger.Warn("ignoring corrupt credential", "op", op, "account_id", accountID, "error", err)
		return nil
	}
	return &cred
}

// LoadSession returns the account's session.  It returns nil when there's no
// session or it can't be decoded.
func (cs *CredentialStore) LoadSession(ctx context.Context, accountID string) *oidc.Session {
	const op = "store.(CredentialStore).LoadSession"
	b, ok := cs.load(ctx, op, SessionKey(accountID), accountID)
	if !ok {
		return nil
	}
	var s oidc.Session
	if err := s.UnmarshalBinary(b); err != nil {
		cs.logger.Warn("ignoring corrupt session", "op", op, "account_id", accountID, "error", err)
		return nil
	}
	return &s
}

func (cs *CredentialStore) load(ctx context.Context, op, key, accountID string) ([]byte, bool) {
	if accountID == "" {
		return nil, false
	}
	b, err := cs.secrets.Get(ctx, key)
	switch {
	case errors.Is(err, ErrNotFound):
		return nil, false
	case err != nil:
		cs.logger.Error("unable to read secret store", "op", op, "account_id", accountID, "error", err)
		return nil, false
	}
	return b, true
}

// Delete removes the account's credential and session.
func (cs *CredentialStore) Delete(ctx context.Context, accountID string) error {
	const op = "store.(CredentialStore).Delete"
	if accountID == "" {
		return fmt.Errorf("%s: account id is empty: %w", op, ErrInvalidParameter)
	}
	var result *multierror.Error
	for _, key := range []string{CredentialKey(accountID), SessionKey(accountID)} {
		if err := cs.secrets.Delete(ctx, key); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
