package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amalgam/internal/models"
	"github.com/desertthunder/amalgam/internal/shared"
)

// UsersAdd creates a local user, the same account the web registration page creates.
func (r *Runner) UsersAdd(ctx context.Context, cmd *cli.Command) error {
	username := strings.TrimSpace(cmd.Args().First())
	if username == "" {
		return shared.NewError(shared.KindInvalidCredentials, shared.MsgUsernameRequired, shared.ErrMissingArgument)
	}

	password := cmd.String("password")
	if password == "" {
		var err error
		if password, err = r.readLine("Password: "); err != nil {
			return err
		}
	}
	if password == "" {
		return shared.NewError(shared.KindInvalidCredentials, shared.MsgPasswordRequired, shared.ErrMissingArgument)
	}

	hash, err := shared.NewBcryptHasher().Hash(password)
	if err != nil {
		return shared.NewError(shared.KindInvalidCredentials, shared.MsgInvalidPassword, err)
	}

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	user := models.NewUser(0, username, hash)
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, shared.ErrDuplicate) {
			return shared.NewError(shared.KindIntegrity, shared.MsgUserAlreadyExists, err)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Info("created user", "username", username, "id", user.ID())
	return r.writePlain("✓ Created user %s\n", username)
}

type userSummary struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Sequence  int    `json:"sequence"`
	CreatedAt string `json:"created_at"`
}

// UsersList prints every local user.
func (r *Runner) UsersList(ctx context.Context, cmd *cli.Command) error {
	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	users, err := s.users.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list users: %w", err)
	}

	summaries := make([]userSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, userSummary{
			ID:        u.ID(),
			Username:  u.Username(),
			Sequence:  u.Sequence(),
			CreatedAt: u.CreatedAt().Format("2006-01-02 15:04"),
		})
	}

	if cmd.Bool("json") {
		return r.writeJSON(summaries, true)
	}

	r.writePlainHeader("Users")
	r.writePlain("Found %d users:\n\n", len(summaries))
	for _, u := range summaries {
		r.writePlain("%d. %s (created %s)\n", u.Sequence, u.Username, u.CreatedAt)
	}
	return nil
}
