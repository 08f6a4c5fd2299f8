package cmd

import (
	"context"
	"errors"

	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/cli/tui"
	"github.com/shiggityshwah/punchlist/log"
	"github.com/shiggityshwah/punchlist/surface"
	"github.com/shiggityshwah/punchlist/types"
)

// PopoutCommand returns the popout command: the detached terminal
// checklist window, kept in sync with the session's other surfaces.
func PopoutCommand() *cli.Command {
	return &cli.Command{
		Name:   "popout",
		Usage:  "Open the interactive checklist window for a session",
		Flags:  SurfaceFlags(),
		Action: popoutAction,
	}
}

func popoutAction(c *cli.Context) error {
	if !isStdoutTTY() {
		return cli.Exit("popout requires a terminal", 1)
	}

	settings, err := settingsFrom(c)
	if err != nil {
		return err
	}
	def, err := definitionFrom(c)
	if err != nil {
		return err
	}
	logger := log.NewLogger("popout")
	session, err := sessionFrom(c, false, logger)
	if err != nil {
		return err
	}
	st, err := storeFrom(c, settings)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	events := tui.NewEvents()
	coord, err := surface.NewCoordinator(surface.Config{
		SessionID:    session,
		Surface:      types.SurfacePopout,
		Definition:   *def,
		Store:        st,
		Renderer:     events,
		Dial:         dialerFrom(c, settings),
		Logger:       logger,
		Backoff:      backoffFrom(settings),
		PollInterval: settings.Surface.PollInterval.Duration,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- coord.Run(ctx) }()

	uiErr := tui.RunPopout(tui.NewPopoutModel(*def, coord, events, cancel))

	cancel()
	if runErr := <-done; runErr != nil && !errors.Is(runErr, context.Canceled) {
		logger.Error("surface stopped with error", map[string]any{
			"error": runErr.Error(),
		})
	}
	if uiErr != nil {
		return cli.Exit(uiErr.Error(), 1)
	}
	return nil
}
