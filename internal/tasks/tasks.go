package tasks

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/services"
)

// ApplicationStore persists one registered client per remote domain.
type ApplicationStore interface {
	GetByDomain(ctx context.Context, domain string) (*models.Application, error)
	Create(ctx context.Context, app *models.Application) error
}

// LinkedAccountStore persists user credentials for remote servers.
type LinkedAccountStore interface {
	Exists(ctx context.Context, userID, domain, token string) (bool, error)
	Create(ctx context.Context, account *models.LinkedAccount) error
	ListByUser(ctx context.Context, userID string) ([]*models.LinkedAccount, error)
	DeleteByUserDomain(ctx context.Context, userID, domain string) error
}

// Remote is the subset of [services.MastodonService] the engines call.
type Remote interface {
	VerifyDomain(ctx context.Context, raw string) (string, error)
	CreateApplication(ctx context.Context, domain string) (*services.AppRegistration, error)
	RequestAppToken(ctx context.Context, domain, clientID, clientSecret string) (string, error)
	AuthorizeEndpoint(ctx context.Context, domain string) (string, error)
	AuthCodeURL(app *models.Application, authURL, state string) string
	ExchangeCode(ctx context.Context, app *models.Application, code string) (string, error)
	HomeTimeline(ctx context.Context, domain, token string, limit int) ([]services.Status, error)
	RedirectURI() string
}

// retry calls fn up to attempts times while retryable(err) holds, sleeping backoff*attempt
// between calls. It returns the number of calls made and the last error.
func retry(ctx context.Context, attempts int, backoff time.Duration, logger *log.Logger, op string,
	retryable func(error) bool, fn func(context.Context) error,
) (int, error) {
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for i := 1; i <= attempts; i++ {
		if err = fn(ctx); err == nil {
			return i, nil
		}
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		if !retryable(err) {
			return i, err
		}

		logger.Warn("retrying", "op", op, "attempt", i, "of", attempts, "error", err)
		if i < attempts && backoff > 0 {
			select {
			case <-ctx.Done():
				return i, ctx.Err()
			case <-time.After(backoff * time.Duration(i)):
			}
		}
	}
	return attempts, err
}
