package oidc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
)

// callbackResponse is the authorization response received on the redirect
// URL.
type callbackResponse struct {
	state          string
	code           string
	err            string
	errDescription string
}

// loopback is an http listener on the loopback redirect URL which receives
// one authorization response.
type loopback struct {
	srv       *http.Server
	responses chan callbackResponse
	logger    hclog.Logger
}

const loopbackSuccess = `<!doctype html><html><body><p>Authentication complete. You can close this window.</p></body></html>`

const loopbackFailure = `<!doctype html><html><body><p>Authentication failed. You can close this window.</p></body></html>`

// listenLoopback starts listening on the redirect URL's host, port and path.
// The redirect URL must be an http URL for a loopback address.
func listenLoopback(redirectURL string, logger hclog.Logger) (*loopback, error) {
	const op = "oidc.listenLoopback"
	u, err := url.Parse(redirectURL)
	if err != nil {
		return nil, fmt.Errorf("%s: redirect url %s is invalid: %w", op, redirectURL, ErrInvalidParameter)
	}
	if u.Scheme != "http" {
		return nil, fmt.Errorf("%s: redirect url %s is not an http loopback url: %w", op, redirectURL, ErrInvalidParameter)
	}
	if !isLoopback(u.Hostname()) {
		return nil, fmt.Errorf("%s: redirect url host %s is not a loopback address: %w", op, u.Hostname(), ErrInvalidParameter)
	}
	addr := u.Host
	if u.Port() == "" {
		addr = net.JoinHostPort(u.Hostname(), "80")
	}
	path := u.Path
	if path == "" {
		path = "/"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to listen on %s: %w", op, addr, err)
	}

	l := &loopback{
		responses: make(chan callbackResponse, 1),
		logger:    logger,
	}
	r := chi.NewRouter()
	r.Get(path, l.handle)
	l.srv = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := l.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("loopback listener stopped", "op", op, "error", err)
		}
	}()
	return l, nil
}

func (l *loopback) handle(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	resp := callbackResponse{
		state:          q.Get("state"),
		code:           q.Get("code"),
		err:            q.Get("error"),
		errDescription: q.Get("error_description"),
	}
	select {
	case l.responses <- resp:
	default:
		l.logger.Warn("ignoring additional authorization response", "state", resp.state)
		http.Error(w, "authorization response already received", http.StatusConflict)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if resp.err != "" {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(loopbackFailure))
		return
	}
	_, _ = w.Write([]byte(loopbackSuccess))
}

// Close stops the listener.
func (l *loopback) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return l.srv.Shutdown(ctx)
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
