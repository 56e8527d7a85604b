package tasks

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/services"
	"github.com/desertthunder/amalgam/internal/shared"
)

// Registrar guarantees a stored [models.Application] exists for a domain.
type Registrar struct {
	apps          ApplicationStore
	remote        Remote
	logger        *log.Logger
	tokenAttempts int
	backoff       time.Duration
}

// NewRegistrar creates a registrar. tokenAttempts bounds the client-credentials grant.
func NewRegistrar(apps ApplicationStore, remote Remote, logger *log.Logger, tokenAttempts int, backoff time.Duration) *Registrar {
	return &Registrar{
		apps:          apps,
		remote:        remote,
		logger:        shared.WithLogger(logger, "component", "registrar"),
		tokenAttempts: tokenAttempts,
		backoff:       backoff,
	}
}

// EnsureClient returns the application for domain, registering one when none is stored.
//
// A stored application is returned without any remote call. Otherwise the client is created
// (once, not retried), the app token is requested (retried on transient failures), and only
// then is the row written. Any failure is [shared.KindServiceUnavailable] and leaves no row.
func (r *Registrar) EnsureClient(ctx context.Context, domain string) (*models.Application, error) {
	app, err := r.apps.GetByDomain(ctx, domain)
	switch {
	case err == nil:
		r.logger.Debug("application cache hit", "domain", domain)
		return app, nil
	case !errors.Is(err, shared.ErrNotFound):
		return nil, unavailable(err)
	}

	r.logger.Info("registering application", "domain", domain)
	reg, err := r.remote.CreateApplication(ctx, domain)
	if err != nil {
		r.logger.Error("application registration failed", "domain", domain, "error", err)
		return nil, unavailable(err)
	}

	var botToken string
	_, err = retry(ctx, r.tokenAttempts, r.backoff, r.logger, "client_credentials", services.IsTransient,
		func(ctx context.Context) error {
			var err error
			botToken, err = r.remote.RequestAppToken(ctx, domain, reg.ClientID, reg.ClientSecret)
			return err
		})
	if err != nil {
		r.logger.Error("app token request failed", "domain", domain, "error", err)
		return nil, unavailable(err)
	}

	app = models.NewApplication(domain, reg.ClientID, reg.ClientSecret, botToken, r.remote.RedirectURI())
	if err := r.apps.Create(ctx, app); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			r.logger.Info("application registered concurrently, using stored row", "domain", domain)
			return r.apps.GetByDomain(ctx, domain)
		}
		return nil, unavailable(err)
	}

	r.logger.Info("application stored", "domain", domain)
	return app, nil
}

func unavailable(cause error) error {
	if errors.Is(cause, context.Canceled) || errors.Is(cause, context.DeadlineExceeded) {
		return cause
	}
	return shared.NewError(shared.KindServiceUnavailable, shared.MsgServiceUnavailable, cause)
}
