package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/checklist"
	"github.com/shiggityshwah/punchlist/cli/render"
	"github.com/shiggityshwah/punchlist/config"
	"github.com/shiggityshwah/punchlist/store"
	"github.com/shiggityshwah/punchlist/types"
	"github.com/shiggityshwah/punchlist/wire"
)

// pingTimeout bounds how long the ping command waits for the pong.
const pingTimeout = 5 * time.Second

// ChecklistCommand returns the checklist command with subcommands.
// Confirm and skip are thin one-shot senders: they announce the
// transition over the relay and the session's field-owning surface
// persists it. Reset and show talk to the store directly.
func ChecklistCommand() *cli.Command {
	return &cli.Command{
		Name:  "checklist",
		Usage: "Act on a session's checklist (confirm, skip, reset, show, ping)",
		Subcommands: []*cli.Command{
			checklistConfirmCommand(),
			checklistSkipCommand(),
			checklistResetCommand(),
			checklistShowCommand(),
			checklistPingCommand(),
		},
	}
}

func checklistConfirmCommand() *cli.Command {
	return &cli.Command{
		Name:      "confirm",
		Usage:     "Confirm a step (applied by the session's overlay surface)",
		ArgsUsage: "<step>",
		Flags:     append(RelayEndpointFlags(), SessionFlag),
		Action:    stepSendAction(wire.ActionConfirmField),
	}
}

func checklistSkipCommand() *cli.Command {
	return &cli.Command{
		Name:      "skip",
		Usage:     "Skip a step (applied by the session's overlay surface)",
		ArgsUsage: "<step>",
		Flags:     append(RelayEndpointFlags(), SessionFlag),
		Action:    stepSendAction(wire.ActionSkipField),
	}
}

// stepSendAction builds the shared confirm/skip action: dial, init,
// announce the step transition, close.
func stepSendAction(action wire.Action) cli.ActionFunc {
	return func(c *cli.Context) error {
		arg, err := requireArg(c, "step")
		if err != nil {
			return err
		}
		index, err := strconv.Atoi(arg)
		if err != nil || index < 0 {
			return cli.Exit(fmt.Sprintf("invalid step index %q", arg), 1)
		}

		ch, session, err := dialSession(c)
		if err != nil {
			return err
		}
		defer func() { _ = ch.Close() }()

		if err := ch.Send(&wire.Message{
			Action:    action,
			SessionID: session,
			Surface:   types.SurfaceTracking,
			StepIndex: index,
		}); err != nil {
			return cli.Exit(err.Error(), 1)
		}
		return nil
	}
}

func checklistResetCommand() *cli.Command {
	return &cli.Command{
		Name:  "reset",
		Usage: "Reset a session's checklist to all-untouched",
		Flags: append(StoreFlags(), SessionFlag),
		Action: func(c *cli.Context) error {
			settings, err := settingsFrom(c)
			if err != nil {
				return err
			}
			session := c.String("session")
			if session == "" {
				return cli.Exit("a session id is required (--session)", 1)
			}
			st, err := storeFrom(c, settings)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			// Removing the state key is the reset signal; every surface
			// recreates fresh state from the change feed.
			if err := st.Delete(c.Context, store.ChecklistStateKey(session)); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// stepStatus is one row of checklist show output.
type stepStatus struct {
	Index     int    `json:"index"`
	Name      string `json:"name,omitempty"`
	Processed bool   `json:"processed"`
	Skipped   bool   `json:"skipped"`
}

func checklistShowCommand() *cli.Command {
	return &cli.Command{
		Name:  "show",
		Usage: "Show a session's checklist state from the store",
		Flags: append(ReadOnlyFlags(), append(StoreFlags(), SessionFlag, DefinitionFlag)...),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for checklist show", 1)
			}
			settings, err := settingsFrom(c)
			if err != nil {
				return err
			}
			session := c.String("session")
			if session == "" {
				return cli.Exit("a session id is required (--session)", 1)
			}
			st, err := storeFrom(c, settings)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			var state checklist.State
			found, err := store.GetJSON(c.Context, st, store.ChecklistStateKey(session), &state)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			if !found {
				return cli.Exit(fmt.Sprintf("no checklist state for session %s", session), 1)
			}

			// Names are cosmetic; without a definition the indexes stand alone.
			var names []string
			if path := c.String("definition"); path != "" {
				def, err := config.LoadDefinition(path)
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
				names = def.DisplayNames()
			}

			rows := make([]stepStatus, len(state))
			for i, item := range state {
				rows[i] = stepStatus{Index: i, Processed: item.Processed, Skipped: item.Skipped}
				if i < len(names) {
					rows[i].Name = names[i]
				}
			}
			return r.Render(rows)
		},
	}
}

// PingResponse is the ping command output.
type PingResponse struct {
	Session string `json:"session"`
	RTT     string `json:"rtt"`
}

func checklistPingCommand() *cli.Command {
	return &cli.Command{
		Name:  "ping",
		Usage: "Check relay reachability for a session",
		Flags: append(ReadOnlyFlags(), append(RelayEndpointFlags(), SessionFlag)...),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for checklist ping", 1)
			}

			ch, session, err := dialSession(c)
			if err != nil {
				return err
			}
			defer func() { _ = ch.Close() }()

			start := time.Now()
			if err := ch.Send(&wire.Message{
				Action:    wire.ActionPing,
				SessionID: session,
				Surface:   types.SurfaceTracking,
			}); err != nil {
				return cli.Exit(err.Error(), 1)
			}

			// Peer surfaces' traffic may arrive first; wait for the pong.
			got := make(chan error, 1)
			go func() {
				for {
					m, err := ch.Receive()
					if err != nil {
						got <- err
						return
					}
					if m.Action == wire.ActionPong {
						got <- nil
						return
					}
				}
			}()

			timer := time.NewTimer(pingTimeout)
			defer timer.Stop()
			select {
			case err := <-got:
				if err != nil {
					return cli.Exit(err.Error(), 1)
				}
			case <-timer.C:
				return cli.Exit(fmt.Sprintf("no pong within %s", pingTimeout), 1)
			}

			return r.Render(PingResponse{
				Session: session,
				RTT:     time.Since(start).Round(time.Microsecond).String(),
			})
		},
	}
}

// dialSession dials the relay and completes the init handshake as the
// tracking surface. The caller owns the returned channel.
func dialSession(c *cli.Context) (wire.Channel, string, error) {
	settings, err := settingsFrom(c)
	if err != nil {
		return nil, "", err
	}
	session := c.String("session")
	if session == "" {
		return nil, "", cli.Exit("a session id is required (--session)", 1)
	}

	network, addr := relayEndpoint(c, settings)
	ch, err := wire.DialContext(c.Context, network, addr)
	if err != nil {
		return nil, "", cli.Exit(fmt.Sprintf("cannot reach relay at %s %s: %v", network, addr, err), 1)
	}

	if err := ch.Send(&wire.Message{
		Action:    wire.ActionInit,
		SessionID: session,
		Surface:   types.SurfaceTracking,
		Version:   types.Version,
	}); err != nil {
		_ = ch.Close()
		return nil, "", cli.Exit(err.Error(), 1)
	}
	return ch, session, nil
}
