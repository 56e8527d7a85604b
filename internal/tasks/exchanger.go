package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/services"
	"github.com/desertthunder/amalgam/internal/shared"
)

// Exchanger trades authorization codes for user access tokens.
type Exchanger struct {
	remote   Remote
	logger   *log.Logger
	attempts int
	backoff  time.Duration
}

// NewExchanger creates an exchanger making at most attempts token calls per code.
func NewExchanger(remote Remote, logger *log.Logger, attempts int, backoff time.Duration) *Exchanger {
	return &Exchanger{
		remote:   remote,
		logger:   shared.WithLogger(logger, "component", "exchanger"),
		attempts: attempts,
		backoff:  backoff,
	}
}

// Exchange returns the user token for code.
//
// A code the server rejects fails at once with [shared.KindInvalidInput]. Any other failure
// is retried; when attempts run out the result is [shared.KindConnection].
func (x *Exchanger) Exchange(ctx context.Context, app *models.Application, code string) (string, error) {
	var token string
	notRejected := func(err error) bool { return !services.IsRejected(err) }

	calls, err := retry(ctx, x.attempts, x.backoff, x.logger, "authorization_code", notRejected,
		func(ctx context.Context) error {
			var err error
			token, err = x.remote.ExchangeCode(ctx, app, code)
			return err
		})

	switch {
	case err == nil:
		return token, nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case services.IsRejected(err):
		x.logger.Error("authorization code rejected", "domain", app.Domain(), "error", err)
		return "", shared.NewError(shared.KindInvalidInput, shared.MsgAuthCodeInvalid, err)
	default:
		x.logger.Error("authorization code exchange failed", "domain", app.Domain(), "attempts", calls, "error", err)
		return "", shared.NewError(shared.KindConnection, shared.MsgLoginTokenError,
			fmt.Errorf("failed to generate user access token after trying %d times: %w", calls, err))
	}
}
