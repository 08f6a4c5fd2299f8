// Package cmd provides CLI commands for the punchlist binaries.
package cmd

import (
	"os"

	"github.com/urfave/cli/v2"
)

// Relay endpoint defaults when neither flags nor punchlist.yaml name one.
const (
	DefaultRelayNetwork = "tcp"
	DefaultRelayAddress = "127.0.0.1:7421"
)

// defaultConfigPath is picked up from the working directory when the
// --config flag is absent.
const defaultConfigPath = "punchlist.yaml"

// Shared flags.
var (
	// FormatFlag selects output format: json, table, yaml.
	FormatFlag = &cli.StringFlag{
		Name:    "format",
		Aliases: []string{"f"},
		Usage:   "Output format: json, table, yaml",
	}

	// TUIFlag enables interactive browsing. Only valid for history list;
	// other commands reject it with an explicit message.
	TUIFlag = &cli.BoolFlag{
		Name:  "tui",
		Usage: "Browse results interactively (history list only)",
	}

	// ConfigFlag names the settings file.
	ConfigFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to punchlist.yaml (default: ./punchlist.yaml when present)",
	}

	// RedisFlag names the shared store. Overrides the settings file.
	RedisFlag = &cli.StringFlag{
		Name:    "redis",
		Usage:   "Redis URL of the shared store, e.g. redis://localhost:6379/0",
		EnvVars: []string{"PUNCHLIST_REDIS_URL"},
	}

	// RelayAddrFlag names the relay endpoint. Overrides the settings file.
	RelayAddrFlag = &cli.StringFlag{
		Name:    "relay",
		Usage:   "Relay address, e.g. 127.0.0.1:7421 or /run/punchlist.sock",
		EnvVars: []string{"PUNCHLIST_RELAY_ADDR"},
	}

	// RelayNetworkFlag selects the relay transport.
	RelayNetworkFlag = &cli.StringFlag{
		Name:    "network",
		Usage:   "Relay network: tcp or unix",
		EnvVars: []string{"PUNCHLIST_RELAY_NETWORK"},
	}

	// SessionFlag names the session a surface or sender joins.
	SessionFlag = &cli.StringFlag{
		Name:    "session",
		Usage:   "Session id the surface joins",
		EnvVars: []string{"PUNCHLIST_SESSION"},
	}

	// DefinitionFlag names the checklist definition file.
	DefinitionFlag = &cli.StringFlag{
		Name:    "definition",
		Aliases: []string{"d"},
		Usage:   "Path to the checklist definition YAML",
	}
)

// ReadOnlyFlags returns the shared flags for read-only commands.
// Includes --tui so that unsupported commands can provide explicit error
// messages instead of generic "flag not defined" errors.
func ReadOnlyFlags() []cli.Flag {
	return []cli.Flag{
		FormatFlag,
		TUIFlag,
	}
}

// StoreFlags returns the flags every store-backed command takes.
func StoreFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		RedisFlag,
	}
}

// RelayEndpointFlags returns the flags naming the relay endpoint.
func RelayEndpointFlags() []cli.Flag {
	return []cli.Flag{
		ConfigFlag,
		RelayNetworkFlag,
		RelayAddrFlag,
	}
}

// SurfaceFlags returns the flags a full surface (overlay, popout) takes:
// it joins a session, loads a definition, and needs both the store and
// the relay endpoint.
func SurfaceFlags() []cli.Flag {
	return []cli.Flag{
		SessionFlag,
		DefinitionFlag,
		ConfigFlag,
		RedisFlag,
		RelayNetworkFlag,
		RelayAddrFlag,
	}
}

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	return isTTY(os.Stderr)
}

// isStdoutTTY returns true if stdout is a TTY.
func isStdoutTTY() bool {
	return isTTY(os.Stdout)
}

func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
