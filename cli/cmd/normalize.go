package cmd

import (
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/cli/render"
	"github.com/shiggityshwah/punchlist/normalize"
)

// NormalizeCommand returns the normalize command with subcommands.
// These run the field rules standalone, without a store or relay, so
// the same canonicalization surfaces apply can be scripted or checked
// by hand. A non-canonical input is an answer, not a failure: the
// command renders the Result and exits zero either way.
func NormalizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "normalize",
		Usage: "Run field normalization rules on a value",
		Subcommands: []*cli.Command{
			normalizeSubcommand("policy-number", "Strip whitespace from a policy number", normalize.NormalizePolicyNumber),
			normalizeSubcommand("named-insured", "Canonicalize a named-insured list", normalize.NormalizeNamedInsured),
		},
	}
}

func normalizeSubcommand(name, usage string, fn func(string) normalize.Result) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<value>",
		Flags:     ReadOnlyFlags(),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for normalize commands", 1)
			}
			if c.NArg() == 0 {
				return cli.Exit("expected a value to normalize", 1)
			}
			// Unquoted shell words arrive as separate args; rejoin them.
			value := strings.Join(c.Args().Slice(), " ")
			return r.Render(fn(value))
		},
	}
}
