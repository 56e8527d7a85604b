package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/services"
	"github.com/desertthunder/amalgam/internal/shared"
)

// LinkState is a step of the account linking flow.
type LinkState int

const (
	Idle LinkState = iota
	DomainSubmitted
	DomainVerified
	ClientReady
	RedirectIssued
	CodeReceived
	TokenExchanged
	Linked
)

func (s LinkState) String() string {
	switch s {
	case Idle:
		return "idle"
	case DomainSubmitted:
		return "domain_submitted"
	case DomainVerified:
		return "domain_verified"
	case ClientReady:
		return "client_ready"
	case RedirectIssued:
		return "redirect_issued"
	case CodeReceived:
		return "code_received"
	case TokenExchanged:
		return "token_exchanged"
	case Linked:
		return "linked"
	default:
		return "unknown"
	}
}

// PendingLink is the part of the flow that lives in the user's session between
// the redirect and the callback.
type PendingLink struct {
	Domain         string // as typed by the user, stored before verification
	VerifiedDomain string // canonical domain reported by the server
	State          string // OAuth state parameter issued with the redirect
}

// Transition describes one state change of a linking attempt.
type Transition struct {
	Domain string
	From   LinkState
	To     LinkState
	Err    error
}

// LinkOptions holds retry budgets for [LinkEngine].
type LinkOptions struct {
	AuthURLAttempts  int
	ExchangeAttempts int
	TokenAttempts    int
	Backoff          time.Duration
}

// LinkEngine runs the multi-account linking state machine.
type LinkEngine struct {
	remote    Remote
	accounts  LinkedAccountStore
	registrar *Registrar
	exchanger *Exchanger
	logger    *log.Logger
	opts      LinkOptions
	observers []func(Transition)
}

// NewLinkEngine wires a link engine from its stores and remote client.
func NewLinkEngine(remote Remote, apps ApplicationStore, accounts LinkedAccountStore, logger *log.Logger, opts LinkOptions) *LinkEngine {
	if opts.AuthURLAttempts < 1 {
		opts.AuthURLAttempts = 3
	}
	if opts.ExchangeAttempts < 1 {
		opts.ExchangeAttempts = 3
	}
	if opts.TokenAttempts < 1 {
		opts.TokenAttempts = 3
	}

	return &LinkEngine{
		remote:    remote,
		accounts:  accounts,
		registrar: NewRegistrar(apps, remote, logger, opts.TokenAttempts, opts.Backoff),
		exchanger: NewExchanger(remote, logger, opts.ExchangeAttempts, opts.Backoff),
		logger:    shared.WithLogger(logger, "component", "link"),
		opts:      opts,
	}
}

// Observe registers fn to receive every state transition.
func (e *LinkEngine) Observe(fn func(Transition)) {
	e.observers = append(e.observers, fn)
}

func (e *LinkEngine) transition(domain string, from, to LinkState, err error) {
	t := Transition{Domain: domain, From: from, To: to, Err: err}
	if err != nil {
		e.logger.Warn("link failed", "domain", domain, "from", from, "error", err)
	} else {
		e.logger.Debug("link transition", "domain", domain, "from", from, "to", to)
	}
	for _, fn := range e.observers {
		fn(t)
	}
}

// fail reports a failed step, which always returns the flow to [Idle].
func (e *LinkEngine) fail(domain string, from LinkState, err error) error {
	e.transition(domain, from, Idle, err)
	return err
}

// Begin starts linking the server the user typed.
//
// The raw input is recorded in pending before anything else so the callback can report it.
// On success pending holds the verified domain and the issued state, and the returned URL
// is where the user must be redirected.
func (e *LinkEngine) Begin(ctx context.Context, pending *PendingLink, rawDomain string) (string, error) {
	*pending = PendingLink{Domain: rawDomain}
	e.transition(rawDomain, Idle, DomainSubmitted, nil)

	domain, err := e.remote.VerifyDomain(ctx, rawDomain)
	if err != nil {
		return "", e.fail(rawDomain, DomainSubmitted, err)
	}
	pending.VerifiedDomain = domain
	e.transition(domain, DomainSubmitted, DomainVerified, nil)

	app, err := e.registrar.EnsureClient(ctx, domain)
	if err != nil {
		return "", e.fail(domain, DomainVerified, err)
	}
	e.transition(domain, DomainVerified, ClientReady, nil)

	authURL, err := e.authorizeEndpoint(ctx, domain)
	if err != nil {
		return "", e.fail(domain, ClientReady, err)
	}

	pending.State = shared.GenerateState()
	redirect := e.remote.AuthCodeURL(app, authURL, pending.State)
	e.transition(domain, ClientReady, RedirectIssued, nil)

	e.logger.Info("issued authorization redirect", "domain", domain)
	return redirect, nil
}

// authorizeEndpoint discovers the authorization endpoint, retrying transient failures.
// A definite answer other than success falls back to the default endpoint.
func (e *LinkEngine) authorizeEndpoint(ctx context.Context, domain string) (string, error) {
	var endpoint string
	calls, err := retry(ctx, e.opts.AuthURLAttempts, e.opts.Backoff, e.logger, "authorize_endpoint", services.IsTransient,
		func(ctx context.Context) error {
			var err error
			endpoint, err = e.remote.AuthorizeEndpoint(ctx, domain)
			return err
		})

	switch {
	case err == nil:
		return endpoint, nil
	case ctx.Err() != nil:
		return "", ctx.Err()
	case services.IsTransient(err):
		return "", shared.NewError(shared.KindServiceUnavailable, shared.MsgServiceUnavailable,
			fmt.Errorf("failed to generate url after trying %d times: %w", calls, err))
	default:
		e.logger.Warn("authorization metadata unusable, using default endpoint", "domain", domain, "error", err)
		return "", nil
	}
}

// Complete finishes linking with the authorization code from the callback.
//
// Preconditions are checked in order: code, user, pending domain, state. Each missing one is a
// [shared.KindInvalidCredentials] error and no remote call is made. A triple that is already
// stored is a [shared.KindIntegrity] error and nothing is written.
func (e *LinkEngine) Complete(ctx context.Context, pending PendingLink, userID, code, state string) (*models.LinkedAccount, error) {
	domain := pending.VerifiedDomain
	switch {
	case code == "":
		return nil, e.fail(domain, RedirectIssued, shared.NewError(shared.KindInvalidCredentials, shared.MsgAuthCodeRequired, nil))
	case userID == "":
		return nil, e.fail(domain, RedirectIssued, shared.NewError(shared.KindInvalidCredentials, shared.MsgPasswordRequired, nil))
	case domain == "":
		return nil, e.fail(domain, RedirectIssued, shared.NewError(shared.KindInvalidCredentials, shared.MsgDomainRequired, nil))
	case pending.State != "" && state != pending.State:
		return nil, e.fail(domain, RedirectIssued, shared.NewError(shared.KindInvalidCredentials, shared.MsgStateMismatch, nil))
	}
	e.transition(domain, RedirectIssued, CodeReceived, nil)

	app, err := e.registrar.EnsureClient(ctx, domain)
	if err != nil {
		return nil, e.fail(domain, CodeReceived, err)
	}

	token, err := e.exchanger.Exchange(ctx, app, code)
	if err != nil {
		return nil, e.fail(domain, CodeReceived, err)
	}
	e.transition(domain, CodeReceived, TokenExchanged, nil)

	exists, err := e.accounts.Exists(ctx, userID, domain, token)
	if err != nil {
		return nil, e.fail(domain, TokenExchanged, unavailable(err))
	}
	if exists {
		return nil, e.fail(domain, TokenExchanged, shared.NewError(shared.KindIntegrity, shared.MsgLinkAlreadyExists, nil))
	}

	account := models.NewLinkedAccount(userID, domain, token)
	if err := e.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return nil, e.fail(domain, TokenExchanged, shared.NewError(shared.KindIntegrity, shared.MsgLinkAlreadyExists, err))
		}
		return nil, e.fail(domain, TokenExchanged, unavailable(err))
	}
	e.transition(domain, TokenExchanged, Linked, nil)

	e.logger.Info("linked account", "domain", domain, "user", userID)
	return account, nil
}

// Unlink removes the user's credentials for each domain, in order.
//
// A domain the user has not linked stops the loop with a [shared.KindIntegrity] error naming it;
// domains before it stay removed. The number of removed domains is returned either way.
func (e *LinkEngine) Unlink(ctx context.Context, userID string, domains ...string) (int, error) {
	removed := 0
	for _, domain := range domains {
		err := e.accounts.DeleteByUserDomain(ctx, userID, domain)
		switch {
		case err == nil:
			removed++
			e.logger.Info("unlinked server", "domain", domain, "user", userID)
		case errors.Is(err, shared.ErrNotFound):
			msg := fmt.Sprintf("%s. Server: %s", shared.MsgInvalidDeleteRecord, domain)
			return removed, shared.NewError(shared.KindIntegrity, msg, err)
		default:
			return removed, unavailable(err)
		}
	}
	return removed, nil
}

// Accounts lists the user's linked accounts.
func (e *LinkEngine) Accounts(ctx context.Context, userID string) ([]*models.LinkedAccount, error) {
	accounts, err := e.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	return accounts, nil
}

// ProgressObserver adapts progress reporting to [LinkEngine.Observe].
func ProgressObserver(progress chan<- ProgressUpdate) func(Transition) {
	return func(t Transition) {
		phase := map[LinkState]Phase{
			DomainSubmitted: VerifyDomain,
			DomainVerified:  RegisterClient,
			ClientReady:     Authorize,
			RedirectIssued:  Authorize,
			CodeReceived:    ExchangeCode,
			TokenExchanged:  StoreLink,
			Linked:          StoreLink,
		}[t.From]
		msg := fmt.Sprintf("%s → %s", t.From, t.To)
		if t.Err != nil {
			msg = fmt.Sprintf("%s failed: %s", t.From, shared.MessageOf(t.Err, t.Err.Error()))
		}
		sendProgress(progress, linkUpdate(phase, t.Domain, msg))
	}
}
