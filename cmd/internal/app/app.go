// Package app wires the sockauth server runtime: config, logging, HTTP
// routes, and the WebSocket gateway.
//
// Everything here is bootstrap plumbing. The authentication core lives in
// cmd/internal/auth and cmd/internal/gateway; this package only establishes
// the one credential store and one token service the process shares across
// every connection.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"sockauth/cmd/internal/auth/credstore"
	"sockauth/cmd/internal/auth/token"
	"sockauth/cmd/internal/gateway"
)

// devTokenSecret signs tokens when no secret is configured. Fine for local
// development, useless for anything else.
const devTokenSecret = "sockauth-insecure-dev-secret"

// App is the sockauth server runtime.
type App struct {
	cfg Config
	log Logger

	gw *gateway.Gateway
}

// New constructs a fully wired App instance from config and logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel)
	}

	secret := cfg.TokenSecret
	if secret == "" {
		log.Warn("token.secret.default", "msg", "SOCKAUTH_TOKEN_SECRET not set; using the built-in development secret")
		secret = devTokenSecret
	}

	tokens, err := token.New([]byte(secret), cfg.TokenTTL)
	if err != nil {
		return nil, err
	}

	// One fresh, empty credential store per process, shared by reference
	// across all connections.
	creds := credstore.New()

	gw := gateway.New(log, gateway.Config{
		OriginRequired:   cfg.OriginRequired,
		AllowedOrigins:   cfg.AllowedOrigins,
		SendQueueSize:    cfg.SendQueueSize,
		WriteTimeout:     cfg.WriteTimeout,
		LivenessInterval: cfg.LivenessInterval,
		LivenessTimeout:  cfg.LivenessTimeout,
		RenewalMargin:    cfg.RenewalMargin,
	}, creds, tokens)

	return &App{cfg: cfg, log: log, gw: gw}, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.gw)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           WithRequestLogging(mux, a.log),
		ReadHeaderTimeout: a.cfg.ReadHeaderTimeout,
		IdleTimeout:       a.cfg.IdleTimeout,
		MaxHeaderBytes:    a.cfg.MaxHeaderBytes,
	}

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "token_ttl", a.cfg.TokenTTL.String())

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}
