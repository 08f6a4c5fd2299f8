package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/log"
	"github.com/shiggityshwah/punchlist/relay"
	"github.com/shiggityshwah/punchlist/wire"
)

// RelayCommand returns the relay command. The relay is the session hub
// every surface connects through; one per deployment.
func RelayCommand() *cli.Command {
	return &cli.Command{
		Name:   "relay",
		Usage:  "Run the relay daemon surfaces connect through",
		Flags:  RelayEndpointFlags(),
		Action: relayAction,
	}
}

func relayAction(c *cli.Context) error {
	settings, err := settingsFrom(c)
	if err != nil {
		return err
	}
	network, addr := relayEndpoint(c, settings)

	ln, err := wire.Listen(network, addr)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	logger := log.NewLogger("relay")
	r := relay.New(relay.Config{Logger: logger})

	// Serve returns nil when the signal context ends.
	serveErr := r.Serve(c.Context, ln)
	_ = r.Close()

	stats := r.Stats()
	logger.Info("relay stopped", map[string]any{
		"links_attached":   stats.LinksAttached,
		"links_detached":   stats.LinksDetached,
		"messages_routed":  stats.MessagesRouted,
		"pings_answered":   stats.PingsAnswered,
		"messages_dropped": stats.MessagesDropped,
	})
	if serveErr != nil {
		return cli.Exit(serveErr.Error(), 1)
	}
	return nil
}
