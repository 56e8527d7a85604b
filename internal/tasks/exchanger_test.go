package tasks

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/shared"
)

func TestExchanger(t *testing.T) {
	ctx := context.Background()
	logger := shared.NewLogger(io.Discard)
	app := models.NewApplication("example.social", "client", "secret", "bot", "http://localhost/cb")

	rejected := &oauth2.RetrieveError{
		Response:  &http.Response{StatusCode: http.StatusBadRequest},
		ErrorCode: "invalid_grant",
	}
	outage := &oauth2.RetrieveError{Response: &http.Response{StatusCode: http.StatusServiceUnavailable}}
	dropped := errors.New("connection reset by peer")

	tests := []struct {
		name      string
		errs      []error
		wantToken string
		wantCalls int
		wantErr   error
	}{
		{name: "valid code", wantToken: "user-token", wantCalls: 1},
		{name: "rejected code is not retried", errs: []error{rejected}, wantCalls: 1, wantErr: shared.ErrInvalidInput},
		{name: "recovers from a transient failure", errs: []error{outage}, wantToken: "user-token", wantCalls: 2},
		{name: "unknown failure is retried", errs: []error{dropped, dropped}, wantToken: "user-token", wantCalls: 3},
		{name: "exhausted attempts", errs: []error{outage, outage, outage}, wantCalls: 3, wantErr: shared.ErrConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			remote := &mockRemote{exchangeErrs: tt.errs, exchangeToken: "user-token"}
			x := NewExchanger(remote, logger, 3, 0)

			token, err := x.Exchange(ctx, app, "code")

			assert.Equal(t, tt.wantCalls, remote.exchangeCalls)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantToken, token)
		})
	}

	t.Run("exhausted attempts report the count", func(t *testing.T) {
		remote := &mockRemote{exchangeErrs: []error{outage, outage, outage}}
		_, err := NewExchanger(remote, logger, 3, 0).Exchange(ctx, app, "code")

		require.Error(t, err)
		assert.Equal(t, shared.MsgLoginTokenError, shared.MessageOf(err, ""))
		assert.Contains(t, err.Error(), "after trying 3 times")
	})

	t.Run("cancelled context aborts", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		remote := &mockRemote{exchangeToken: "user-token"}

		_, err := NewExchanger(remote, logger, 3, 0).Exchange(cctx, app, "code")
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, remote.exchangeCalls)
	})
}
