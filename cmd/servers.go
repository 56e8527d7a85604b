package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amalgam/internal/server"
	"github.com/desertthunder/amalgam/internal/shared"
	"github.com/desertthunder/amalgam/internal/tasks"
)

type serverSummary struct {
	Domain    string `json:"domain"`
	Sequence  int    `json:"sequence"`
	CreatedAt string `json:"created_at"`
}

// ServersList prints the servers linked to --user.
func (r *Runner) ServersList(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := r.lookupUser(ctx, s, cmd)
	if err != nil {
		return err
	}

	accounts, err := s.links.Accounts(ctx, user.ID())
	if err != nil {
		return err
	}

	summaries := make([]serverSummary, 0, len(accounts))
	for _, a := range accounts {
		summaries = append(summaries, serverSummary{
			Domain:    a.Domain(),
			Sequence:  a.Sequence(),
			CreatedAt: a.CreatedAt().Format("2006-01-02 15:04"),
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(summaries, true)
	}

	if len(summaries) == 0 {
		return r.writePlain("%s has no linked servers. Add one with: amalgam servers add <domain> --user %s\n", user.Username(), user.Username())
	}
	r.writePlain("Servers linked to %s:\n\n", user.Username())
	for i, srv := range summaries {
		r.writePlain("%d. %s (since %s)\n", i+1, srv.Domain, srv.CreatedAt)
	}
	return nil
}

// ServersAdd links a server for --user.
//
// The user approves access in the browser; the redirect lands on a temporary local server bound to
// the configured redirect URI, so the configured address must be free while the command runs.
func (r *Runner) ServersAdd(ctx context.Context, cmd *cli.Command) error {
	domain := cmd.Args().First()
	if domain == "" {
		return shared.NewError(shared.KindInvalidDomain, shared.MsgDomainRequired, shared.ErrMissingArgument)
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := r.lookupUser(ctx, s, cmd)
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 16)
	var printer sync.WaitGroup
	printer.Add(1)
	go func() {
		defer printer.Done()
		for update := range progress {
			r.logger.Debug("link progress", "phase", update.Phase, "domain", update.Domain, "message", update.Message)
		}
	}()
	defer func() {
		close(progress)
		printer.Wait()
	}()
	s.links.Observe(tasks.ProgressObserver(progress))

	var pending tasks.PendingLink
	authURL, err := s.links.Begin(ctx, &pending, domain)
	if err != nil {
		return err
	}

	r.writePlain("→ Linking %s for %s\n", pending.VerifiedDomain, user.Username())
	result, err := r.awaitCallback(ctx, authURL, pending.State, cmd.Bool("no-browser"))
	if err != nil {
		return err
	}

	account, err := s.links.Complete(ctx, pending, user.ID(), result.Code, result.State)
	if err != nil {
		return err
	}

	r.writePlainln("✓ %s", shared.MsgServerAdded)
	r.writePlain("✓ %s linked to %s\n", account.Domain(), user.Username())
	return nil
}

// awaitCallback serves the redirect URI until the authorization server sends the user back.
func (r *Runner) awaitCallback(ctx context.Context, authURL, state string, noBrowser bool) (*server.CallbackResult, error) {
	redirect, err := url.Parse(r.config.Mastodon.RedirectURI)
	if err != nil || redirect.Host == "" {
		return nil, fmt.Errorf("%w: mastodon.redirect_uri %q", shared.ErrInvalidConfig, r.config.Mastodon.RedirectURI)
	}

	handler := server.NewCallbackHandler(redirect.Path, state)
	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(handler)

	listener, err := net.Listen("tcp", redirect.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", redirect.Host, err)
	}

	httpServer := server.NewHTTPServer(redirect.Host, router)
	serverErrors := make(chan error, 1)
	go func() {
		r.logger.Infof("waiting for authorization callback at %v", redirect.String())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	if noBrowser {
		r.writePlain("Open this URL in your browser:\n%s\n\n", authURL)
	} else {
		r.writePlain("→ Opening browser for authorization...\n")
		if err := r.openBrowser(authURL); err != nil {
			r.logger.Warnf("failed to open browser automatically %v", err)
			r.writePlainln("⚠ Could not open browser automatically.")
			r.writePlain("Please open this URL in your browser:\n%s\n\n", authURL)
		}
	}

	r.writePlain("→ Waiting for authorization (%s timeout)...\n", r.callbackTimeout)

	timeout := time.NewTimer(r.callbackTimeout)
	defer timeout.Stop()

	select {
	case result := <-handler.Result():
		if result.State != state {
			return nil, shared.NewError(shared.KindInvalidCredentials, shared.MsgStateMismatch, result.Error())
		}
		if result.Error() != nil {
			return nil, shared.NewError(shared.KindInvalidCredentials, shared.MsgAuthCodeRequired, result.Error())
		}
		return &result, nil
	case err := <-serverErrors:
		return nil, fmt.Errorf("callback server error: %w", err)
	case <-timeout.C:
		return nil, shared.NewError(shared.KindServiceUnavailable, shared.MsgServiceUnavailable,
			fmt.Errorf("authorization timed out after %s", r.callbackTimeout))
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ServersRemove unlinks the named servers from --user, stopping at the first unknown one.
func (r *Runner) ServersRemove(ctx context.Context, cmd *cli.Command) error {
	domains := cmd.Args().Slice()
	if len(domains) == 0 {
		return shared.NewError(shared.KindInvalidDomain, shared.MsgDomainRequired, shared.ErrMissingArgument)
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := r.lookupUser(ctx, s, cmd)
	if err != nil {
		return err
	}

	removed, err := s.links.Unlink(ctx, user.ID(), domains...)
	for _, d := range domains[:removed] {
		r.writePlain("✓ Removed %s\n", d)
	}
	return err
}
