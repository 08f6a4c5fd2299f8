package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/cli/render"
	"github.com/shiggityshwah/punchlist/types"
)

// VersionResponse is the response for the version command.
// Reports the protocol version every component speaks in lockstep.
type VersionResponse struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// VersionCommand returns the version command. The version is the
// compiled-in protocol version, never fetched from a relay or store.
func VersionCommand(_, commit string) *cli.Command {
	return &cli.Command{
		Name:   "version",
		Usage:  "Show version information",
		Flags:  ReadOnlyFlags(),
		Action: versionAction(commit),
	}
}

func versionAction(commit string) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}
		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for version command", 1)
		}
		return r.Render(VersionResponse{
			Version: types.Version,
			Commit:  commit,
		})
	}
}
