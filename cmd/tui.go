package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/amalgam/internal/shared"
	"github.com/desertthunder/amalgam/internal/ui"
)

const tuiLogFile = "./tmp/amalgam-tui.log"

// TUI launches the interactive feed browser for --user.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Logs go to a file; the program owns the terminal.
	path := r.config.Log.File
	if path == "" {
		path = tuiLogFile
	}
	fileLogger, closer, err := shared.NewFileLogger(path)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	defer closer.Close()
	shared.ApplyLogLevel(fileLogger, r.config.Log.Level)
	r.SetLogger(fileLogger)

	s, err := r.open(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	user, err := r.lookupUser(ctx, s, cmd)
	if err != nil {
		return err
	}

	model := ui.NewModel(ctx, s.feed, user.ID(), user.Username())
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
