package tasks

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/repositories"
	"github.com/desertthunder/amalgam/internal/services"
	"github.com/desertthunder/amalgam/internal/shared"
)

type testEnv struct {
	db       *sql.DB
	apps     *repositories.ApplicationRepository
	accounts *repositories.LinkedAccountRepository
	remote   *services.MastodonService
	logger   *log.Logger
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, shared.RunMigrations(db))

	logger := shared.NewLogger(io.Discard)
	return &testEnv{
		db:       db,
		apps:     repositories.NewApplicationRepository(db),
		accounts: repositories.NewLinkedAccountRepository(db),
		remote: services.NewMastodonService(services.MastodonOptions{
			HTTPClient:  &http.Client{Timeout: 5 * time.Second},
			Logger:      logger,
			Scheme:      "http",
			UserAgent:   "amalgam-test",
			RedirectURI: "http://localhost:3000/feed/handle_oauth",
		}),
		logger: logger,
	}
}

func (e *testEnv) user(t *testing.T, name string) string {
	t.Helper()
	user := models.NewUser(0, name, "hash")
	require.NoError(t, repositories.NewUserRepository(e.db).Create(context.Background(), user))
	return user.ID()
}

func (e *testEnv) linkEngine() *LinkEngine {
	return NewLinkEngine(e.remote, e.apps, e.accounts, e.logger, LinkOptions{})
}

// mockRemote answers every call with the configured values and counts calls.
type mockRemote struct {
	Remote

	exchangeErrs  []error
	exchangeToken string
	exchangeCalls int

	timelines    map[string][]services.Status
	timelineErrs map[string]error
}

func (m *mockRemote) ExchangeCode(ctx context.Context, app *models.Application, code string) (string, error) {
	m.exchangeCalls++
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if i := m.exchangeCalls - 1; i < len(m.exchangeErrs) && m.exchangeErrs[i] != nil {
		return "", m.exchangeErrs[i]
	}
	return m.exchangeToken, nil
}

func (m *mockRemote) HomeTimeline(ctx context.Context, domain, token string, limit int) ([]services.Status, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := m.timelineErrs[domain]; err != nil {
		return nil, err
	}
	statuses := m.timelines[domain]
	if len(statuses) > limit {
		statuses = statuses[:limit]
	}
	return statuses, nil
}

func TestRetry(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)
	errTransient := errors.New("transient")
	errFatal := errors.New("fatal")
	isTransient := func(err error) bool { return errors.Is(err, errTransient) }

	tests := []struct {
		name      string
		attempts  int
		failures  []error
		wantCalls int
		wantErr   error
	}{
		{name: "first call succeeds", attempts: 3, wantCalls: 1},
		{name: "succeeds after transient failures", attempts: 3, failures: []error{errTransient, errTransient}, wantCalls: 3},
		{name: "exhausts attempts", attempts: 3, failures: []error{errTransient, errTransient, errTransient}, wantCalls: 3, wantErr: errTransient},
		{name: "stops on non-retryable error", attempts: 3, failures: []error{errFatal}, wantCalls: 1, wantErr: errFatal},
		{name: "zero attempts still calls once", attempts: 0, failures: []error{errTransient}, wantCalls: 1, wantErr: errTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := 0
			calls, err := retry(ctx, tt.attempts, 0, logger, "test", isTransient, func(context.Context) error {
				n++
				if n <= len(tt.failures) {
					return tt.failures[n-1]
				}
				return nil
			})

			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantCalls, n)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	t.Run("cancelled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		n := 0
		calls, err := retry(ctx, 3, time.Second, logger, "test", isTransient, func(context.Context) error {
			n++
			cancel()
			return errTransient
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
		assert.Equal(t, 1, n)
	})
}

func TestSendProgress(t *testing.T) {
	t.Run("nil channel is ignored", func(t *testing.T) {
		sendProgress(nil, ProgressUpdate{Message: "dropped"})
	})

	t.Run("full channel does not block", func(t *testing.T) {
		ch := make(chan ProgressUpdate, 1)
		sendProgress(ch, ProgressUpdate{Message: "first"})
		sendProgress(ch, ProgressUpdate{Message: "second"})

		require.Len(t, ch, 1)
		assert.Equal(t, "first", (<-ch).Message)
	})

	t.Run("phase names", func(t *testing.T) {
		assert.Equal(t, "verify_domain", VerifyDomain.String())
		assert.Equal(t, "merge_feed", MergeFeed.String())
		assert.Equal(t, "", Phase(99).String())
	})
}
