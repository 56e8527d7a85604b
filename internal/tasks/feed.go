package tasks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/services"
	"github.com/desertthunder/amalgam/internal/shared"
)

// FeedOptions configures timeline aggregation.
type FeedOptions struct {
	PageSize       int     // Posts requested per server (default: 20)
	MaxConcurrency int     // Concurrent fetches (default: 4)
	RateLimit      float64 // Fetches started per second, 0 disables pacing
	FailFast       bool    // Abort the whole feed on the first failed server
}

// FeedFailure records a server whose timeline could not be fetched.
type FeedFailure struct {
	Domain string
	Err    error
}

// FeedResult is a merged timeline.
type FeedResult struct {
	Posts    []models.Post
	Failures []FeedFailure
	Servers  int // Linked servers queried
}

// FailedDomains lists the domains in Failures.
func (r *FeedResult) FailedDomains() []string {
	domains := make([]string, 0, len(r.Failures))
	for _, f := range r.Failures {
		domains = append(domains, f.Domain)
	}
	return domains
}

// FeedEngine builds merged timelines across a user's linked servers.
type FeedEngine struct {
	accounts LinkedAccountStore
	remote   Remote
	logger   *log.Logger
	opts     FeedOptions
}

// NewFeedEngine creates a feed engine, filling in defaults for unset options.
func NewFeedEngine(accounts LinkedAccountStore, remote Remote, logger *log.Logger, opts FeedOptions) *FeedEngine {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if opts.MaxConcurrency <= 0 {
		opts.MaxConcurrency = 4
	}
	return &FeedEngine{
		accounts: accounts,
		remote:   remote,
		logger:   shared.WithLogger(logger, "component", "feed"),
		opts:     opts,
	}
}

type fetchSlot struct {
	posts []models.Post
	err   error
}

// Build fetches the home timeline of every server userID has linked and merges them.
//
// No linked servers is a [shared.KindNoContent] error, distinct from an empty feed. Servers
// that fail are listed in the result's Failures unless FailFast is set, in which case the first
// failure is returned. If every server fails the result is [shared.KindServiceUnavailable].
func (e *FeedEngine) Build(ctx context.Context, progress chan<- ProgressUpdate, userID string) (*FeedResult, error) {
	accounts, err := e.accounts.ListByUser(ctx, userID)
	if err != nil {
		return nil, unavailable(err)
	}
	if len(accounts) == 0 {
		return nil, shared.NewError(shared.KindNoContent, shared.MsgNoContentFound, nil)
	}

	total := len(accounts)
	sendProgress(progress, fetchingUpdate(total))

	var g *errgroup.Group
	gctx := ctx
	if e.opts.FailFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	g.SetLimit(min(total, e.opts.MaxConcurrency))

	var limiter *rate.Limiter
	if e.opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(e.opts.RateLimit), 1)
	}

	slots := make([]fetchSlot, total)
	var done atomic.Int32

	for i, account := range accounts {
		g.Go(func() error {
			if limiter != nil {
				if err := limiter.Wait(gctx); err != nil {
					slots[i].err = err
					return err
				}
			}

			posts, err := e.fetch(gctx, account)
			step := int(done.Add(1))
			if err != nil {
				slots[i].err = err
				e.logger.Warn("timeline fetch failed", "domain", account.Domain(), "error", err)
				sendProgress(progress, fetchFailedUpdate(step, total, account.Domain(), err))
				if e.opts.FailFast {
					return err
				}
				return nil
			}

			slots[i].posts = posts
			sendProgress(progress, fetchedUpdate(step, total, account.Domain(), len(posts)))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, feedError(err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	result := &FeedResult{Servers: total}
	for i, slot := range slots {
		if slot.err != nil {
			result.Failures = append(result.Failures, FeedFailure{Domain: accounts[i].Domain(), Err: slot.err})
			continue
		}
		result.Posts = append(result.Posts, slot.posts...)
	}

	if len(result.Failures) == total {
		cause := errors.Join(errorsOf(result.Failures)...)
		return nil, shared.NewError(shared.KindServiceUnavailable, shared.MsgAllServersFailed, cause)
	}

	SortPosts(result.Posts)
	sendProgress(progress, mergedUpdate(result))
	e.logger.Info("built feed", "user", userID, "posts", len(result.Posts), "failed", len(result.Failures))
	return result, nil
}

func (e *FeedEngine) fetch(ctx context.Context, account *models.LinkedAccount) ([]models.Post, error) {
	statuses, err := e.remote.HomeTimeline(ctx, account.Domain(), account.AccessToken(), e.opts.PageSize)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", account.Domain(), err)
	}

	posts := make([]models.Post, 0, len(statuses))
	for _, status := range statuses {
		posts = append(posts, NormalizePost(account.Domain(), status))
	}
	return posts, nil
}

func feedError(err error) error {
	var serr *shared.Error
	if errors.As(err, &serr) {
		return err
	}
	return shared.NewError(shared.KindServiceUnavailable, shared.MsgServiceUnavailable, err)
}

func errorsOf(failures []FeedFailure) []error {
	errs := make([]error, 0, len(failures))
	for _, f := range failures {
		errs = append(errs, f.Err)
	}
	return errs
}

// NormalizePost converts a remote status into a [models.Post] tagged with domain.
func NormalizePost(domain string, s services.Status) models.Post {
	post := models.Post{
		ID:          s.ID,
		Domain:      domain,
		CreatedAt:   s.CreatedAt,
		URL:         s.URL,
		Content:     s.Content,
		SpoilerText: s.SpoilerText,
		Sensitive:   s.Sensitive,
		Visibility:  s.Visibility,
		Account: models.Account{
			ID:          s.Account.ID,
			Username:    s.Account.Username,
			Acct:        s.Account.Acct,
			DisplayName: s.Account.DisplayName,
			URL:         s.Account.URL,
			Avatar:      s.Account.Avatar,
		},
		FavouritesCount: s.FavouritesCount,
		ReblogsCount:    s.ReblogsCount,
		RepliesCount:    s.RepliesCount,
	}

	for _, m := range s.MediaAttachments {
		media := models.Media{Type: m.Type, URL: m.URL, PreviewURL: m.PreviewURL}
		if m.Description != nil {
			media.Description = *m.Description
		}
		post.Media = append(post.Media, media)
	}
	return post
}

// SortPosts orders posts by favourite count, highest first. Ties keep their order.
func SortPosts(posts []models.Post) {
	slices.SortStableFunc(posts, func(a, b models.Post) int {
		return b.FavouritesCount - a.FavouritesCount
	})
}
