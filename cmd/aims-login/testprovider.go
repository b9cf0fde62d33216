package main

import (
	"errors"
	"fmt"
	"net/url"

	"github.com/hashicorp/go-hclog"

	"github.com/hashicorp/cap-aims/account"
	"github.com/hashicorp/cap-aims/oidc"
)

// testAccountID is the account served by --test-provider.
const testAccountID = "test"

var errTestProviderFailed = errors.New("test provider failed")

// providerT satisfies oidc.TestingT for a TestProvider running outside of a
// test.  Failures are logged and abort the current request.
type providerT struct {
	logger hclog.Logger
}

func (t *providerT) Errorf(format string, args ...interface{}) {
	t.logger.Error(fmt.Sprintf(format, args...))
}

func (t *providerT) FailNow() { panic(errTestProviderFailed) }

func (t *providerT) Helper() {}

// startTestProvider starts an in-process identity service and returns a
// registry with its one account.
func startTestProvider(logger hclog.Logger) (r *account.StaticRegistry, stop func(), err error) {
	const op = "main.startTestProvider"
	t := &providerT{logger: logger.Named("test-provider")}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: %v", op, rec)
		}
	}()
	tp := oidc.StartTestProvider(t, 0)
	u, err := url.Parse(tp.Addr())
	if err != nil {
		tp.Stop()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	r, err = account.NewStaticRegistry(&account.Account{
		ID:          testAccountID,
		Protocol:    u.Scheme,
		Host:        u.Hostname(),
		Port:        u.Port(),
		RedirectURI: oidc.TestLoopbackRedirectURL(t),
	})
	if err != nil {
		tp.Stop()
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	logger.Info("test provider started", "issuer", tp.Issuer(), "account_id", testAccountID)
	return r, tp.Stop, nil
}
