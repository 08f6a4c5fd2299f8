package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/checklist"
	"github.com/shiggityshwah/punchlist/config"
	"github.com/shiggityshwah/punchlist/ledger"
	"github.com/shiggityshwah/punchlist/log"
	"github.com/shiggityshwah/punchlist/store"
	"github.com/shiggityshwah/punchlist/surface"
	"github.com/shiggityshwah/punchlist/wire"
)

// settingsFrom loads the settings file. --config names it explicitly; a
// ./punchlist.yaml is picked up when present, and having neither is fine.
// Flags always override whatever the file says.
func settingsFrom(c *cli.Context) (*config.Settings, error) {
	path := c.String("config")
	if path == "" {
		if _, err := os.Stat(defaultConfigPath); err != nil {
			return &config.Settings{}, nil
		}
		path = defaultConfigPath
	}
	settings, err := config.Load(path)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return settings, nil
}

// storeFrom opens the shared Redis store. The caller owns Close.
func storeFrom(c *cli.Context, settings *config.Settings) (store.Store, error) {
	url := c.String("redis")
	if url == "" {
		url = settings.Redis.URL
	}
	if url == "" {
		return nil, cli.Exit("a redis url is required (--redis or punchlist.yaml)", 1)
	}

	st, err := store.NewRedisStore(store.Config{
		URL:     url,
		Prefix:  settings.Redis.Prefix,
		Channel: settings.Redis.Channel,
		Timeout: settings.Redis.Timeout.Duration,
	})
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return st, nil
}

// ledgerFrom opens the store and wraps it in a ledger. The caller closes
// the returned store.
func ledgerFrom(c *cli.Context, settings *config.Settings) (*ledger.Ledger, store.Store, error) {
	st, err := storeFrom(c, settings)
	if err != nil {
		return nil, nil, err
	}
	l, err := ledger.New(ledger.Config{Store: st, Logger: log.NewLogger("tracking")})
	if err != nil {
		_ = st.Close()
		return nil, nil, cli.Exit(err.Error(), 1)
	}
	return l, st, nil
}

// relayEndpoint resolves the relay network and address from flags,
// settings, and defaults, in that order.
func relayEndpoint(c *cli.Context, settings *config.Settings) (network, addr string) {
	network = c.String("network")
	if network == "" {
		network = settings.Relay.Network
	}
	if network == "" {
		network = DefaultRelayNetwork
	}
	addr = c.String("relay")
	if addr == "" {
		addr = settings.Relay.Address
	}
	if addr == "" {
		addr = DefaultRelayAddress
	}
	return network, addr
}

// dialerFrom builds the surface dialer for the resolved relay endpoint.
func dialerFrom(c *cli.Context, settings *config.Settings) surface.Dialer {
	network, addr := relayEndpoint(c, settings)
	return func(ctx context.Context) (wire.Channel, error) {
		return wire.DialContext(ctx, network, addr)
	}
}

// backoffFrom maps settings onto the reconnect schedule. Zero values get
// the surface package defaults.
func backoffFrom(settings *config.Settings) surface.Backoff {
	return surface.Backoff{
		Base:        settings.Surface.Backoff.Base.Duration,
		Max:         settings.Surface.Backoff.Max.Duration,
		MaxAttempts: settings.Surface.Backoff.MaxAttempts,
	}
}

// definitionFrom loads the pre-validated checklist definition.
func definitionFrom(c *cli.Context) (*checklist.Definition, error) {
	path := c.String("definition")
	if path == "" {
		return nil, cli.Exit("a checklist definition is required (--definition)", 1)
	}
	def, err := config.LoadDefinition(path)
	if err != nil {
		return nil, cli.Exit(err.Error(), 1)
	}
	return def, nil
}

// sessionFrom resolves the session id. Surfaces that can start a fresh
// session pass generate=true and get a new id (logged so peers can join);
// everything else requires --session.
func sessionFrom(c *cli.Context, generate bool, logger *log.Logger) (string, error) {
	if s := c.String("session"); s != "" {
		return s, nil
	}
	if !generate {
		return "", cli.Exit("a session id is required (--session)", 1)
	}
	s := uuid.NewString()
	logger.Info("session generated", map[string]any{"session_id": s})
	return s, nil
}

// requireArg returns the single positional argument or an exit error.
func requireArg(c *cli.Context, name string) (string, error) {
	if c.NArg() != 1 {
		return "", cli.Exit(fmt.Sprintf("expected exactly one argument: <%s>", name), 1)
	}
	return c.Args().First(), nil
}
