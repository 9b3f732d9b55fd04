package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/cur8/internal/shared"
	"github.com/desertthunder/cur8/internal/ui"
)

// TUI launches the interactive swipe interface for the saved session's user.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Redirect logs to file to avoid interfering with TUI rendering.
	// Components built by open pick up the file logger, so this has to come first.
	fileLogger, err := shared.NewFileLogger(cmd.String("log-file"))
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	if r.config != nil {
		shared.ConfigureLogger(fileLogger, r.config)
	}
	r.SetLogger(fileLogger)

	d, user, err := r.currentUser(ctx)
	if err != nil {
		return err
	}

	opts := []ui.Option{ui.WithOpener(r.openBrowser)}
	if cmd.Bool("sync") {
		opts = append(opts, ui.WithSync())
	}

	model := ui.NewModel(ctx, d.user, user, opts...)
	p := tea.NewProgram(model, tea.WithContext(ctx))

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}

	return nil
}
