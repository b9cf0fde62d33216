package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hashicorp/cap-aims/account"
	"github.com/hashicorp/cap-aims/oidc"
)

var (
	errLoginCancelled = errors.New("login cancelled")
	errNotRevoked     = errors.New("nothing to revoke")
)

// runFunc runs a command for one account.  The runtime's service is bound to
// a context which is cancelled by ctrl-c.
type runFunc func(cmd *cobra.Command, rt *hostRuntime, a *account.Account) error

func accountCmd(v *viper.Viper, use, short string, run runFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <account-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			rt, err := newHostRuntime(ctx, v, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer rt.Close()
			a, err := rt.Account(args[0])
			if err != nil {
				return err
			}
			return run(cmd, rt, a)
		},
	}
}

func newProbeCmd(v *viper.Viper) *cobra.Command {
	return accountCmd(v, "probe", "Report the auth type the account's server requires",
		func(cmd *cobra.Command, rt *hostRuntime, a *account.Account) error {
			type probeResult struct {
				t   oidc.AuthType
				err error
			}
			done := make(chan probeResult, 1)
			rt.service.ProbeAuthType(a, func(t oidc.AuthType, err error) { done <- probeResult{t, err} })
			r := <-done
			if r.err != nil {
				return r.err
			}
			fmt.Fprintln(cmd.OutOrStdout(), r.t)
			return nil
		})
}

func newLoginCmd(v *viper.Viper) *cobra.Command {
	return accountCmd(v, "login", "Log the account in with the browser",
		func(cmd *cobra.Command, rt *hostRuntime, a *account.Account) error {
			rt.service.Update(a)
			done := make(chan accountResult, 1)
			rt.service.Login(newUIHost(cmd.ErrOrStderr()), func(a *account.Account, err error) { done <- accountResult{a, err} })
			r := <-done
			switch {
			case r.err != nil:
				return r.err
			case r.a == nil:
				return errLoginCancelled
			}
			return printStatus(cmd, r.a)
		})
}

func newRefreshCmd(v *viper.Viper) *cobra.Command {
	return accountCmd(v, "refresh", "Refresh the account's credential",
		func(cmd *cobra.Command, rt *hostRuntime, a *account.Account) error {
			rt.service.Update(a)
			done := make(chan accountResult, 1)
			rt.service.RefreshSession(a, func(a *account.Account, err error) { done <- accountResult{a, err} })
			r := <-done
			if r.err != nil {
				return r.err
			}
			return printStatus(cmd, r.a)
		})
}

func newLogoutCmd(v *viper.Viper) *cobra.Command {
	return accountCmd(v, "logout", "Revoke the account's credential",
		func(cmd *cobra.Command, rt *hostRuntime, a *account.Account) error {
			rt.service.Update(a)
			type logoutResult struct {
				ok  bool
				err error
			}
			done := make(chan logoutResult, 1)
			rt.service.Logout(newUIHost(cmd.ErrOrStderr()), func(ok bool, err error) { done <- logoutResult{ok, err} })
			r := <-done
			switch {
			case r.err != nil:
				return r.err
			case !r.ok:
				return errNotRevoked
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s logged out\n", a.ID)
			return nil
		})
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return accountCmd(v, "status", "Show the account's persisted credential",
		func(cmd *cobra.Command, _ *hostRuntime, a *account.Account) error {
			return printStatus(cmd, a)
		})
}

type accountResult struct {
	a   *account.Account
	err error
}

// status is the printable, token free, summary of an account's credential.
type status struct {
	AccountID        string     `json:"account_id"`
	LoggedIn         bool       `json:"logged_in"`
	Username         string     `json:"username,omitempty"`
	Subject          string     `json:"subject,omitempty"`
	TokenType        string     `json:"token_type,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	RefreshExpiresAt *time.Time `json:"refresh_expires_at,omitempty"`
	Expired          bool       `json:"expired"`
	RefreshExpired   bool       `json:"refresh_expired"`
}

func statusOf(a *account.Account) status {
	s := status{AccountID: a.ID}
	cred := a.OAuthData
	if cred == nil {
		return s
	}
	s.LoggedIn = true
	s.TokenType = cred.TokenType
	s.Username = cred.Payload.Username()
	s.Subject = cred.Payload.Subject()
	if exp := cred.ExpiresAt(); !exp.IsZero() {
		s.ExpiresAt = &exp
	}
	if exp := cred.RefreshExpiresAt(); !exp.IsZero() {
		s.RefreshExpiresAt = &exp
	}
	s.Expired = cred.Expired()
	s.RefreshExpired = cred.RefreshExpired()
	return s
}

func printStatus(cmd *cobra.Command, a *account.Account) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(statusOf(a))
}
