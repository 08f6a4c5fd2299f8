package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/types"
)

// NewApp builds the punchlist CLI application. The relay daemon is also
// reachable here as a subcommand; the punchlist-relay binary exists so
// the daemon can be supervised separately.
func NewApp(commit string) *cli.App {
	return &cli.App{
		Name:    "punchlist",
		Usage:   "Checklist-driven form filling: surfaces, relay, queue and history",
		Version: fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		Commands: []*cli.Command{
			OverlayCommand(),
			PopoutCommand(),
			ChecklistCommand(),
			QueueCommand(),
			HistoryCommand(),
			NormalizeCommand(),
			RelayCommand(),
			VersionCommand("", commit),
		},
	}
}
