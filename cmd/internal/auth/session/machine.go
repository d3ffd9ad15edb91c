// Package session implements the per-connection authentication state machine.
//
// A machine is created Anonymous when its connection is established and is
// destroyed with the connection. It consults the process-wide credential
// store and token service but is never itself shared across connections.
// Authentication state lives only in memory for the connection lifetime; a
// reconnecting client re-authenticates by presenting a still-valid token via
// RefreshToken.
package session

import (
	"log/slog"
	"sync"
	"time"

	"sockauth/cmd/internal/auth/credstore"
	"sockauth/cmd/internal/auth/token"
	"sockauth/cmd/internal/metrics"
	v1 "sockauth/shared/contracts/auth/v1"
)

// Identity is the Authenticated variant of the session state: who the
// connection is logged in as and when its current token lapses. A nil
// *Identity is the Anonymous variant, so a username can never exist without
// an expiry.
type Identity struct {
	Username  string
	ExpiresAt time.Time
}

// Credentials is the slice of the credential store the session consumes.
type Credentials interface {
	RegisterOrVerify(username, pass string) (credstore.Outcome, error)
}

// Machine is one connection's session state machine.
//
// Its methods are safe for the two goroutines that share it on a connection:
// the read loop (HandleMessage) and the liveness loop (RenewIfExpiring).
// Requests from one connection are still processed one at a time in arrival
// order because a single read loop drives HandleMessage.
type Machine struct {
	log    *slog.Logger
	creds  Credentials
	tokens *token.Service

	mu    sync.Mutex
	ident *Identity
}

// New constructs an Anonymous machine bound to the shared credential store
// and token service.
func New(log *slog.Logger, creds Credentials, tokens *token.Service) *Machine {
	return &Machine{log: log, creds: creds, tokens: tokens}
}

// Identity returns the current identity and whether the session is
// authenticated.
func (m *Machine) Identity() (Identity, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ident == nil {
		return Identity{}, false
	}
	return *m.ident, true
}

// HandleMessage decodes one inbound frame, applies the transition table, and
// returns the encoded reply. Malformed input is answered with an
// InvalidRequest response and leaves the state unchanged; nothing here is
// fatal to the connection.
//
// A nil return means no reply: the frame was well-formed but an internal
// failure (store, token minting) prevented serving it. InvalidRequest is
// reserved for frames the client got wrong.
func (m *Machine) HandleMessage(raw []byte, now time.Time) []byte {
	req, err := v1.DecodeRequest(raw)
	if err != nil {
		m.log.Debug("session.request.malformed", "err", err)
		return v1.InvalidRequest().Encode()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	resp, ok := m.dispatch(req, now)
	if !ok {
		return nil
	}
	return resp.Encode()
}

func (m *Machine) dispatch(req v1.Request, now time.Time) (v1.Response, bool) {
	switch req := req.(type) {
	case v1.Login:
		return m.login(req, now)
	case v1.Logout:
		return m.logout(), true
	case v1.RefreshToken:
		return m.refresh(req, now)
	default:
		return v1.InvalidRequest(), true
	}
}

func (m *Machine) login(req v1.Login, now time.Time) (v1.Response, bool) {
	if m.ident != nil {
		// A stray duplicate login surfaces the existing identity instead of
		// silently overwriting it, before any password check.
		metrics.Logins.WithLabelValues("already_authorized").Inc()
		return v1.AlreadyAuthorized(m.ident.Username), true
	}

	outcome, err := m.creds.RegisterOrVerify(req.Username, req.Password)
	if err != nil {
		m.log.Error("session.login.store_fail", "username", req.Username, "err", err)
		return v1.Response{}, false
	}

	if outcome == credstore.Mismatch {
		m.log.Info("session.login.invalid_password", "username", req.Username)
		metrics.Logins.WithLabelValues("invalid_password").Inc()
		return v1.InvalidPassword(), true
	}

	tok, exp, err := m.tokens.Issue(req.Username, now)
	if err != nil {
		m.log.Error("session.login.issue_fail", "username", req.Username, "err", err)
		return v1.Response{}, false
	}
	m.ident = &Identity{Username: req.Username, ExpiresAt: exp}
	metrics.TokensIssued.WithLabelValues("login").Inc()

	if outcome == credstore.Created {
		m.log.Info("session.login.registered", "username", req.Username, "expires_at", exp.Unix())
		metrics.Logins.WithLabelValues("registered").Inc()
		return v1.Registered(tok, exp), true
	}

	m.log.Info("session.login.success", "username", req.Username, "expires_at", exp.Unix())
	metrics.Logins.WithLabelValues("success").Inc()
	return v1.Success(tok, exp), true
}

func (m *Machine) logout() v1.Response {
	if m.ident == nil {
		return v1.NotLoggedIn()
	}

	// Logout clears local session state only. The token itself stays valid
	// until expiry; there is no revocation list.
	m.log.Info("session.logout", "username", m.ident.Username)
	m.ident = nil
	return v1.LoggedOut()
}

func (m *Machine) refresh(req v1.RefreshToken, now time.Time) (v1.Response, bool) {
	// Refresh is state-agnostic: the token, not the in-memory session, is
	// the proof of identity. It authenticates an anonymous session and
	// re-keys an authenticated one.
	subject, _, err := m.tokens.Validate(req.Token, now)
	if err != nil {
		m.log.Info("session.refresh.invalid_token")
		metrics.RefreshFailures.Inc()
		return v1.InvalidToken(), true
	}

	tok, exp, err := m.tokens.Issue(subject, now)
	if err != nil {
		m.log.Error("session.refresh.issue_fail", "username", subject, "err", err)
		return v1.Response{}, false
	}
	m.ident = &Identity{Username: subject, ExpiresAt: exp}
	metrics.TokensIssued.WithLabelValues("refresh").Inc()

	m.log.Info("session.refresh.success", "username", subject, "expires_at", exp.Unix())
	return v1.Success(tok, exp), true
}

// RenewIfExpiring re-mints the session's token when it would lapse within
// horizon, updating the stored expiry. It returns the encoded unsolicited
// Success push and true when a renewal happened.
func (m *Machine) RenewIfExpiring(now time.Time, horizon time.Duration) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ident == nil {
		return nil, false
	}
	if m.ident.ExpiresAt.Sub(now) >= horizon {
		return nil, false
	}

	tok, exp, err := m.tokens.Issue(m.ident.Username, now)
	if err != nil {
		m.log.Error("session.renew.issue_fail", "username", m.ident.Username, "err", err)
		return nil, false
	}
	m.ident.ExpiresAt = exp
	metrics.TokensIssued.WithLabelValues("renewal").Inc()

	m.log.Info("session.renew", "username", m.ident.Username, "expires_at", exp.Unix())
	return v1.Success(tok, exp).Encode(), true
}
