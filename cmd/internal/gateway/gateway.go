// Package gateway is the WebSocket entrypoint for sockauth.
//
// It owns the transport side of a connection: upgrade and origin policy, the
// writer and liveness goroutines, and teardown. Authentication semantics
// live in the session machine each connection drives; the gateway only hands
// it raw frames and writes its raw replies back to the wire.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"log/slog"

	"sockauth/cmd/internal/auth/credstore"
	"sockauth/cmd/internal/auth/session"
	"sockauth/cmd/internal/auth/token"
	"sockauth/cmd/internal/metrics"

	"github.com/coder/websocket"
)

// Config controls per-connection transport behavior.
type Config struct {
	// Origin policy. When OriginRequired is false, requests without an
	// Origin header (CLI clients, tests) are accepted; browser requests
	// still have to match AllowedOrigins.
	OriginRequired bool
	AllowedOrigins []string

	SendQueueSize int
	WriteTimeout  time.Duration

	// Liveness probe cadence and the threshold after which an unacknowledged
	// peer is torn down.
	LivenessInterval time.Duration
	LivenessTimeout  time.Duration

	// RenewalMargin is the safety slack added to LivenessInterval when
	// checking whether the session token would lapse before the next probe.
	RenewalMargin time.Duration
}

func (c Config) withDefaults() Config {
	if c.SendQueueSize < minSendQueueSize {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = defaultLivenessInterval
	}
	if c.LivenessTimeout <= 0 {
		c.LivenessTimeout = defaultLivenessTimeout
	}
	if c.RenewalMargin <= 0 {
		c.RenewalMargin = defaultRenewalMargin
	}
	return c
}

// Gateway accepts WebSocket connections and runs one session machine per
// connection against the shared credential store and token service.
type Gateway struct {
	log    *slog.Logger
	cfg    Config
	creds  *credstore.Store
	tokens *token.Service

	// Derived for websocket.Accept origin checks: Accept authorizes
	// same-host origins by default but needs host patterns for cross-origin.
	originPatterns []string
}

// New constructs a Gateway. creds and tokens are the process-wide instances
// shared by every connection.
func New(log *slog.Logger, cfg Config, creds *credstore.Store, tokens *token.Service) *Gateway {
	cfg = cfg.withDefaults()

	return &Gateway{
		log:            log,
		cfg:            cfg,
		creds:          creds,
		tokens:         tokens,
		originPatterns: originPatterns(cfg.AllowedOrigins),
	}
}

// ServeHTTP adapter so the gateway can be mounted as an http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS upgrades an HTTP request to a WebSocket connection and runs the
// per-connection loops until teardown.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: g.originPatterns,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	conn.SetReadLimit(maxFrameBytes)

	now := time.Now().UTC()
	connID, err := NewConnID(now)
	if err != nil {
		g.log.Error("ws.conn_id.fail", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "id")
		return
	}

	log := g.log.With("conn_id", connID)
	client := NewClient(connID, g.cfg.SendQueueSize, now)
	machine := session.New(log, g.creds, g.tokens)

	metrics.TotalConnections.Inc()
	metrics.ActiveConnections.Inc()
	defer metrics.ActiveConnections.Dec()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// shutdown is idempotent and is the only teardown path: it stops both
	// background goroutines and unblocks the read loop.
	var closeOnce sync.Once
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			client.Close()
			_ = conn.Close(code, reason)
			cancel()
		})
	}

	log.Info("ws.connect", "remote", r.RemoteAddr)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		g.runWriter(ctx, conn, client, shutdown)
	}()

	livenessDone := make(chan struct{})
	go func() {
		defer close(livenessDone)
		g.runLiveness(ctx, conn, client, machine, log, shutdown)
	}()

	g.runReader(ctx, conn, client, machine, log, shutdown)

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-livenessDone:
	case <-time.After(closeGrace):
	}

	log.Info("ws.disconnect")
}

// runWriter drains the client's send queue onto the wire. It is the only
// writer of data frames on the connection.
func (g *Gateway) runWriter(ctx context.Context, conn *websocket.Conn, client *Client, shutdown func(websocket.StatusCode, string)) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case frame := <-client.Send:
			writeCtx, writeCancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
			err := conn.Write(writeCtx, websocket.MessageText, frame)
			writeCancel()

			if err != nil {
				g.log.Info("ws.write.fail", "conn_id", client.ID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "write failed")
				return
			}
			metrics.MessagesSent.Inc()
		}
	}
}

// runLiveness couples the liveness probe with proactive token renewal: as
// long as probes are acknowledged, an idle authenticated connection never
// silently loses authentication.
func (g *Gateway) runLiveness(ctx context.Context, conn *websocket.Conn, client *Client, machine *session.Machine, log *slog.Logger, shutdown func(websocket.StatusCode, string)) {
	t := time.NewTicker(g.cfg.LivenessInterval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case <-t.C:
			now := time.Now().UTC()

			if now.Sub(client.LastLiveness()) > g.cfg.LivenessTimeout {
				log.Info("ws.liveness.timeout", "last_ack", client.LastLiveness())
				metrics.LivenessTimeouts.Inc()
				shutdown(websocket.StatusGoingAway, "liveness timeout")
				return
			}

			pingCtx, pingCancel := context.WithTimeout(ctx, g.cfg.WriteTimeout)
			err := conn.Ping(pingCtx)
			pingCancel()

			if err != nil {
				log.Info("ws.ping.fail", "err", err)
			} else {
				client.TouchLiveness(time.Now().UTC())
			}

			if !g.pushRenewal(ctx, client, machine, log, now) {
				shutdown(websocket.StatusPolicyViolation, "backpressure")
				return
			}
		}
	}
}

// pushRenewal enqueues a proactive token renewal when the session's grant
// would lapse before the next probe. It reports false when the push could not
// be queued: the session has already recorded the new expiry, so keeping the
// connection would leave the peer holding only the superseded token.
func (g *Gateway) pushRenewal(ctx context.Context, client *Client, machine *session.Machine, log *slog.Logger, now time.Time) bool {
	push, ok := machine.RenewIfExpiring(now, g.cfg.LivenessInterval+g.cfg.RenewalMargin)
	if !ok {
		return true
	}
	if !enqueue(ctx, client, push) {
		log.Info("ws.renew.backpressure")
		return false
	}
	return true
}

// runReader processes inbound frames one at a time in arrival order. Every
// request-level failure is answered on the wire; only transport errors end
// the loop.
func (g *Gateway) runReader(ctx context.Context, conn *websocket.Conn, client *Client, machine *session.Machine, log *slog.Logger, shutdown func(websocket.StatusCode, string)) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
			default:
				log.Info("ws.read.fail", "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
			}
			return
		}

		metrics.MessagesReceived.Inc()

		reply := machine.HandleMessage(data, time.Now().UTC())
		if reply == nil {
			// Internal failure on a well-formed frame; already logged.
			continue
		}
		if !enqueue(ctx, client, reply) {
			// The peer is not draining its replies; nothing useful is left
			// to do with this connection.
			shutdown(websocket.StatusPolicyViolation, "backpressure")
			return
		}
	}
}

func enqueue(ctx context.Context, client *Client, frame []byte) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- frame:
		return true
	default:
		return false
	}
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrOther readErrKind = iota
	readErrClose
	readErrCtxDone
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrClose
	}
	return readErrOther
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.cfg.OriginRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.cfg.AllowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	host := originHost(origin)
	for _, allowed := range g.cfg.AllowedOrigins {
		allowed = strings.TrimSpace(allowed)
		if allowed == "" {
			continue
		}
		if allowed == "*" || origin == allowed {
			return nil
		}
		if host != "" && host == originHost(allowed) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

// originHost extracts the lowercase host from either a full origin URL or a
// bare host[:port] form.
func originHost(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		s = u.Host
	}

	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

// originPatterns derives the host patterns websocket.Accept matches
// cross-origin requests against, so the two policy layers agree.
func originPatterns(allowed []string) []string {
	seen := make(map[string]struct{}, len(allowed))
	out := make([]string, 0, len(allowed))

	for _, a := range allowed {
		h := originHost(a)
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}
