package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/services"
	"github.com/desertthunder/amalgam/internal/shared"
	tu "github.com/desertthunder/amalgam/internal/testing"
)

type stubAccounts struct {
	LinkedAccountStore
	accounts []*models.LinkedAccount
}

func (s stubAccounts) ListByUser(context.Context, string) ([]*models.LinkedAccount, error) {
	return s.accounts, nil
}

func TestFeedEngine_Build(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*testEnv, string, *tu.FakeMastodon, *tu.FakeMastodon) {
		t.Helper()
		env := newTestEnv(t)
		userID := env.user(t, "alice")

		first := tu.NewFakeMastodon(t)
		first.Timelines["token-a"] = []map[string]any{tu.Status("a1", 5), tu.Status("a2", 1), tu.Status("a3", 3)}
		second := tu.NewFakeMastodon(t)
		second.Timelines["token-b"] = []map[string]any{tu.Status("b1", 3), tu.Status("b2", 4)}

		require.NoError(t, env.accounts.Create(ctx, models.NewLinkedAccount(userID, first.Host(), "token-a")))
		require.NoError(t, env.accounts.Create(ctx, models.NewLinkedAccount(userID, second.Host(), "token-b")))
		return env, userID, first, second
	}

	t.Run("no linked servers", func(t *testing.T) {
		env := newTestEnv(t)
		userID := env.user(t, "alice")
		engine := NewFeedEngine(env.accounts, env.remote, env.logger, FeedOptions{})

		result, err := engine.Build(ctx, nil, userID)
		require.Error(t, err)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, shared.ErrNoContent)
		assert.Equal(t, shared.MsgNoContentFound, shared.MessageOf(err, ""))
	})

	t.Run("merges and sorts by favourites", func(t *testing.T) {
		env, userID, first, second := setup(t)
		engine := NewFeedEngine(env.accounts, env.remote, env.logger, FeedOptions{})

		result, err := engine.Build(ctx, nil, userID)
		require.NoError(t, err)
		require.Len(t, result.Posts, 5)
		assert.Empty(t, result.Failures)
		assert.Equal(t, 2, result.Servers)

		var ids []string
		var favourites []int
		for _, p := range result.Posts {
			ids = append(ids, p.ID)
			favourites = append(favourites, p.FavouritesCount)
		}
		assert.Equal(t, []int{5, 4, 3, 3, 1}, favourites)
		assert.Equal(t, []string{"a1", "b2", "a3", "b1", "a2"}, ids)

		for _, p := range result.Posts {
			want := first.Host()
			if p.ID[0] == 'b' {
				want = second.Host()
			}
			assert.Equal(t, want, p.Domain, "post %s", p.ID)

			data, err := json.Marshal(p)
			require.NoError(t, err)
			var fields map[string]any
			require.NoError(t, json.Unmarshal(data, &fields))
			assert.Equal(t, want, fields["original_server"])
			for _, key := range []string{"uri", "in_reply_to_id", "in_reply_to_account_id", "muted", "language"} {
				assert.NotContains(t, fields, key)
			}
		}
		assert.Equal(t, 20, first.LastLimit)
	})

	t.Run("page size is configurable", func(t *testing.T) {
		env, userID, first, _ := setup(t)
		engine := NewFeedEngine(env.accounts, env.remote, env.logger, FeedOptions{PageSize: 2})

		result, err := engine.Build(ctx, nil, userID)
		require.NoError(t, err)
		assert.Len(t, result.Posts, 4)
		assert.Equal(t, 2, first.LastLimit)
	})

	t.Run("failed server is reported", func(t *testing.T) {
		env, userID, _, second := setup(t)
		second.TimelineStatus = http.StatusBadGateway
		engine := NewFeedEngine(env.accounts, env.remote, env.logger, FeedOptions{})

		result, err := engine.Build(ctx, nil, userID)
		require.NoError(t, err)
		assert.Len(t, result.Posts, 3)
		require.Len(t, result.Failures, 1)
		assert.Equal(t, []string{second.Host()}, result.FailedDomains())
	})

	t.Run("fail fast aborts", func(t *testing.T) {
		env, userID, _, second := setup(t)
		second.TimelineStatus = http.StatusBadGateway
		engine := NewFeedEngine(env.accounts, env.remote, env.logger, FeedOptions{FailFast: true})

		result, err := engine.Build(ctx, nil, userID)
		require.Error(t, err)
		assert.Nil(t, result)
		assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
	})

	t.Run("every server failing", func(t *testing.T) {
		env, userID, first, second := setup(t)
		first.TimelineStatus = http.StatusInternalServerError
		second.TimelineStatus = http.StatusInternalServerError
		engine := NewFeedEngine(env.accounts, env.remote, env.logger, FeedOptions{})

		_, err := engine.Build(ctx, nil, userID)
		require.Error(t, err)
		assert.ErrorIs(t, err, shared.ErrServiceUnavailable)
		assert.Equal(t, shared.MsgAllServersFailed, shared.MessageOf(err, ""))
	})

	t.Run("reports progress", func(t *testing.T) {
		env, userID, _, _ := setup(t)
		engine := NewFeedEngine(env.accounts, env.remote, env.logger, FeedOptions{MaxConcurrency: 1, RateLimit: 100})
		progress := make(chan ProgressUpdate, 10)

		result, err := engine.Build(ctx, progress, userID)
		require.NoError(t, err)
		close(progress)

		var updates []ProgressUpdate
		for u := range progress {
			updates = append(updates, u)
		}
		require.Len(t, updates, 4)
		assert.Equal(t, FetchTimeline, updates[0].Phase)
		assert.Equal(t, 2, updates[0].Total)
		assert.Equal(t, 1, updates[1].Step)
		assert.Equal(t, 2, updates[2].Step)
		assert.Equal(t, MergeFeed, updates[3].Phase)
		assert.Same(t, result, updates[3].Data)
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		accounts := stubAccounts{accounts: []*models.LinkedAccount{
			models.NewLinkedAccount("u", "a.example", "t"),
			models.NewLinkedAccount("u", "b.example", "t"),
		}}
		engine := NewFeedEngine(accounts, &mockRemote{}, shared.NewLogger(io.Discard), FeedOptions{})

		_, err := engine.Build(cctx, nil, "u")
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("fail fast keeps the typed remote error", func(t *testing.T) {
		accounts := stubAccounts{accounts: []*models.LinkedAccount{models.NewLinkedAccount("u", "a.example", "t")}}
		remote := &mockRemote{timelineErrs: map[string]error{
			"a.example": shared.NewError(shared.KindConnection, "down", errors.New("boom")),
		}}
		engine := NewFeedEngine(accounts, remote, shared.NewLogger(io.Discard), FeedOptions{FailFast: true})

		_, err := engine.Build(ctx, nil, "u")
		assert.ErrorIs(t, err, shared.ErrConnection)
	})
}

func TestNormalizePost(t *testing.T) {
	lang := "en"
	muted := true
	desc := "a cat"
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	post := NormalizePost("example.social", services.Status{
		ID:         "1",
		URI:        "https://example.social/statuses/1",
		URL:        "https://example.social/@cat/1",
		CreatedAt:  created,
		Content:    "<p>meow</p>",
		Visibility: "public",
		Language:   &lang,
		Muted:      &muted,
		Account:    services.MastodonAccount{ID: "9", Acct: "cat", DisplayName: "Cat"},
		MediaAttachments: []services.MastodonMedia{
			{ID: "m1", Type: "image", URL: "https://example.social/m1.png", Description: &desc},
			{ID: "m2", Type: "video", URL: "https://example.social/m2.mp4"},
		},
		FavouritesCount: 7,
	})

	assert.Equal(t, "example.social", post.Domain)
	assert.Equal(t, created, post.CreatedAt)
	assert.Equal(t, "Cat", post.Account.Name())
	assert.Equal(t, 7, post.FavouritesCount)
	require.Len(t, post.Media, 2)
	assert.Equal(t, "a cat", post.Media[0].Description)
	assert.Empty(t, post.Media[1].Description)
}

func TestSortPosts(t *testing.T) {
	posts := []models.Post{
		{ID: "a", FavouritesCount: 1},
		{ID: "b", FavouritesCount: 2},
		{ID: "c", FavouritesCount: 1},
		{ID: "d", FavouritesCount: 2},
	}
	SortPosts(posts)

	var ids []string
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
}
