package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amalgam/internal/server"
	"github.com/desertthunder/amalgam/internal/shared"
	"github.com/desertthunder/amalgam/internal/web"
)

const defaultSessionSecret = "change-me-to-a-long-random-string"

// Serve runs the web application until the context is cancelled.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	app, err := web.NewApp(web.Deps{
		Users:    s.users,
		Links:    s.links,
		Feed:     s.feed,
		Hasher:   shared.NewBcryptHasher(),
		Sessions: web.NewCookieSessionStore(r.config.Server.SecureCookies, r.sessionKey()),
		Logger:   r.logger,
	})
	if err != nil {
		return fmt.Errorf("failed to build web app: %w", err)
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Addr()
	}
	httpServer := server.NewHTTPServer(addr, app.Handler())

	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Info("listening", "addr", addr, "base_url", r.config.Server.BaseURL, "redirect_uri", r.config.Mastodon.RedirectURI)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

// sessionKey returns the cookie signing key. Without a configured secret a random key is used,
// so sessions do not survive a restart.
func (r *Runner) sessionKey() []byte {
	secret := r.config.Server.SessionSecret
	switch secret {
	case "":
		r.logger.Warn("server.session_secret is empty, using a random key for this run")
		return securecookie.GenerateRandomKey(32)
	case defaultSessionSecret:
		r.logger.Warn("server.session_secret still has the example value, set " + shared.EnvSessionSecret)
	}
	return []byte(secret)
}
