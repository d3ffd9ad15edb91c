package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"sockauth/cmd/internal/auth/credstore"
	"sockauth/cmd/internal/auth/session"
	"sockauth/cmd/internal/auth/token"
	v1 "sockauth/shared/contracts/auth/v1"

	"github.com/coder/websocket"
)

func newTestServer(t *testing.T, cfg Config, ttl time.Duration) *httptest.Server {
	t.Helper()

	creds := credstore.New()
	tokens, err := token.New([]byte("test-secret"), ttl)
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := httptest.NewServer(New(log, cfg, creds, tokens))
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, srv.URL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Write(ctx, websocket.MessageText, []byte(msg)); err != nil {
		t.Fatalf("Write: %v", err)
	}
}

func recv(t *testing.T, conn *websocket.Conn) v1.Response {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	var resp v1.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		t.Fatalf("response is not valid JSON: %v (%q)", err, data)
	}
	return resp
}

func TestGateway_LoginLogoutRefresh(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{}, time.Hour)
	conn := dial(t, srv)

	send(t, conn, `{"type":"Login","username":"alice","password":"pw1"}`)
	reg := recv(t, conn)
	if reg.Type != v1.TypeRegistered || reg.Token == "" {
		t.Fatalf("got %+v want Registered with token", reg)
	}

	send(t, conn, `{"type":"Logout"}`)
	if resp := recv(t, conn); resp.Type != v1.TypeLoggedOut {
		t.Fatalf("got %q want %q", resp.Type, v1.TypeLoggedOut)
	}

	// The unexpired token is still refreshable after logout.
	send(t, conn, `{"type":"RefreshToken","token":"`+reg.Token+`"}`)
	ref := recv(t, conn)
	if ref.Type != v1.TypeSuccess {
		t.Fatalf("got %q want %q", ref.Type, v1.TypeSuccess)
	}
	if ref.Token == reg.Token {
		t.Fatalf("refresh must mint a new token")
	}
}

func TestGateway_MalformedFrameKeepsConnectionOpen(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{}, time.Hour)
	conn := dial(t, srv)

	send(t, conn, `this is not json`)
	if resp := recv(t, conn); resp.Type != v1.TypeInvalidRequest {
		t.Fatalf("got %q want %q", resp.Type, v1.TypeInvalidRequest)
	}

	// The connection is still usable afterwards.
	send(t, conn, `{"type":"Login","username":"bob","password":"pw2"}`)
	if resp := recv(t, conn); resp.Type != v1.TypeRegistered {
		t.Fatalf("got %q want %q", resp.Type, v1.TypeRegistered)
	}
}

func TestGateway_OriginPolicy(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, Config{OriginRequired: true}, time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// No Origin header while one is required.
	conn, resp, err := websocket.Dial(ctx, srv.URL, nil)
	if err == nil {
		_ = conn.Close(websocket.StatusNormalClosure, "")
		t.Fatalf("expected dial to be rejected")
	}
	if resp != nil && resp.StatusCode != 403 {
		t.Fatalf("status=%d want 403", resp.StatusCode)
	}
}

// An idle authenticated connection with acknowledged probes receives
// unsolicited Success pushes instead of silently losing authentication.
func TestGateway_AutoRenewalPush(t *testing.T) {
	t.Parallel()

	cfg := Config{
		LivenessInterval: 50 * time.Millisecond,
		LivenessTimeout:  5 * time.Second,
		RenewalMargin:    25 * time.Millisecond,
	}
	srv := newTestServer(t, cfg, 500*time.Millisecond)
	conn := dial(t, srv)

	send(t, conn, `{"type":"Login","username":"carol","password":"pwA"}`)
	reg := recv(t, conn)
	if reg.Type != v1.TypeRegistered {
		t.Fatalf("got %q want %q", reg.Type, v1.TypeRegistered)
	}

	// The client sends nothing further; reading keeps probe acknowledgments
	// flowing and collects the renewal push.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatalf("no renewal push before deadline")
		}

		push := recv(t, conn)
		if push.Type != v1.TypeSuccess {
			t.Fatalf("unexpected push %+v", push)
		}
		if push.Token == reg.Token {
			t.Fatalf("renewal must mint a new token")
		}
		if push.ExpiresAt > reg.ExpiresAt {
			return // strictly later expiry without any re-login
		}
	}
}

// A renewal push that cannot be queued must report failure so the connection
// is torn down, instead of the server believing the peer holds the new token.
func TestGateway_RenewalBackpressure(t *testing.T) {
	t.Parallel()

	creds := credstore.New()
	tokens, err := token.New([]byte("test-secret"), time.Hour)
	if err != nil {
		t.Fatalf("token.New: %v", err)
	}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	g := New(log, Config{
		LivenessInterval: 50 * time.Millisecond,
		RenewalMargin:    25 * time.Millisecond,
	}, creds, tokens)

	machine := session.New(log, creds, tokens)
	if reply := machine.HandleMessage([]byte(`{"type":"Login","username":"erin","password":"pw"}`), time.Now().UTC()); reply == nil {
		t.Fatalf("login produced no reply")
	}

	ctx := context.Background()
	inHorizon := time.Now().UTC().Add(time.Hour) // at expiry, well inside the horizon

	// Queue room: the push lands and the step succeeds.
	client := NewClient("c1", minSendQueueSize, time.Now().UTC())
	if !g.pushRenewal(ctx, client, machine, log, inHorizon) {
		t.Fatalf("renewal with queue room must succeed")
	}
	if got := len(client.Send); got != 1 {
		t.Fatalf("queued=%d want 1", got)
	}

	// Full queue: the step reports backpressure.
	full := NewClient("c2", minSendQueueSize, time.Now().UTC())
	for i := 0; i < minSendQueueSize; i++ {
		full.Send <- []byte(`{}`)
	}
	if g.pushRenewal(ctx, full, machine, log, inHorizon.Add(time.Hour)) {
		t.Fatalf("renewal against a full queue must report backpressure")
	}
}

// A peer that stops acknowledging probes is torn down; the blast radius is
// that one connection.
func TestGateway_LivenessTimeout(t *testing.T) {
	t.Parallel()

	cfg := Config{
		LivenessInterval: 50 * time.Millisecond,
		LivenessTimeout:  250 * time.Millisecond,
		WriteTimeout:     100 * time.Millisecond,
	}
	srv := newTestServer(t, cfg, time.Hour)
	conn := dial(t, srv)

	// Not reading means pings are never acknowledged. Wait past the timeout,
	// then observe the server-initiated close.
	time.Sleep(600 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for {
		if _, _, err := conn.Read(ctx); err != nil {
			return
		}
	}
}
