package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/cli/render"
	"github.com/shiggityshwah/punchlist/cli/tui"
	"github.com/shiggityshwah/punchlist/ledger"
)

// HistoryCommand returns the history command with subcommands.
func HistoryCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Manage the history of worked-on forms",
		Subcommands: []*cli.Command{
			historyListCommand(),
			historyRemoveCommand(),
			historyProgressCommand(),
			historyCompleteCommand(),
			historyMatchCommand(),
			historyPruneCommand(),
		},
	}
}

func historyListCommand() *cli.Command {
	return &cli.Command{
		Name:   "list",
		Usage:  "List history entries (most recent first)",
		Flags:  append(ReadOnlyFlags(), StoreFlags()...),
		Action: historyListAction,
	}
}

func historyListAction(c *cli.Context) error {
	interactive := c.Bool("tui")
	if interactive && !isStdoutTTY() {
		return cli.Exit("--tui requires a terminal", 1)
	}
	var r *render.Renderer
	if !interactive {
		var err error
		r, err = render.NewRenderer(c)
		if err != nil {
			return err
		}
	}
	settings, err := settingsFrom(c)
	if err != nil {
		return err
	}
	l, st, err := ledgerFrom(c, settings)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	history, err := l.History(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	if interactive {
		return tui.RunHistory(history)
	}
	return r.Render(history)
}

func historyRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove a history entry",
		ArgsUsage: "<id>",
		Flags:     StoreFlags(),
		Action: func(c *cli.Context) error {
			id, err := requireArg(c, "id")
			if err != nil {
				return err
			}
			settings, err := settingsFrom(c)
			if err != nil {
				return err
			}
			l, st, err := ledgerFrom(c, settings)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := l.RemoveFromHistory(c.Context, id); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

func historyProgressCommand() *cli.Command {
	return &cli.Command{
		Name:      "progress",
		Usage:     "Record checked or reviewed progress on a history entry",
		ArgsUsage: "<id>",
		Flags: append(ReadOnlyFlags(), append(StoreFlags(),
			&cli.IntFlag{
				Name:     "current",
				Usage:    "Steps done",
				Required: true,
			},
			&cli.IntFlag{
				Name:     "total",
				Usage:    "Steps total",
				Required: true,
			},
			&cli.BoolFlag{
				Name:  "review",
				Usage: "Record the review pass instead of the checking pass",
			},
		)...),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for history progress", 1)
			}
			id, err := requireArg(c, "id")
			if err != nil {
				return err
			}
			settings, err := settingsFrom(c)
			if err != nil {
				return err
			}
			l, st, err := ledgerFrom(c, settings)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			entry, err := l.UpdateProgress(c.Context, id, c.Int("current"), c.Int("total"), c.Bool("review"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return r.Render(entry)
		},
	}
}

func historyCompleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "complete",
		Usage:     "Mark a history entry complete (or undo that)",
		ArgsUsage: "<id>",
		Flags: append(ReadOnlyFlags(), append(StoreFlags(),
			&cli.BoolFlag{
				Name:  "undo",
				Usage: "Clear the manual completion mark",
			},
		)...),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for history complete", 1)
			}
			id, err := requireArg(c, "id")
			if err != nil {
				return err
			}
			settings, err := settingsFrom(c)
			if err != nil {
				return err
			}
			l, st, err := ledgerFrom(c, settings)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			entry, err := l.MarkComplete(c.Context, id, !c.Bool("undo"))
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return r.Render(entry)
		},
	}
}

func historyMatchCommand() *cli.Command {
	return &cli.Command{
		Name:  "match",
		Usage: "Resolve a loaded form page to its history entry",
		Flags: append(ReadOnlyFlags(), append(StoreFlags(),
			&cli.StringFlag{
				Name:     "id",
				Usage:    "Permanent tracking id from the page",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Workflow URL of the page",
			},
			&cli.StringFlag{
				Name:  "policy-number",
				Usage: "Policy number from the page",
			},
			&cli.StringFlag{
				Name:  "submission-number",
				Usage: "Submission number from the page",
			},
			&cli.StringFlag{
				Name:  "premium",
				Usage: "Premium amount from the page",
			},
			&cli.StringFlag{
				Name:  "broker",
				Usage: "Broker name from the page",
			},
			&cli.StringFlag{
				Name:  "policy-type",
				Usage: "Policy type from the page",
			},
		)...),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for history match", 1)
			}
			settings, err := settingsFrom(c)
			if err != nil {
				return err
			}
			l, st, err := ledgerFrom(c, settings)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			entry, err := l.MatchOrCreate(c.Context, ledger.PageIdentity{
				TrackingID:       c.String("id"),
				SubmissionNumber: c.String("submission-number"),
				PolicyNumber:     c.String("policy-number"),
				URL:              c.String("url"),
				Premium:          c.String("premium"),
				Broker:           c.String("broker"),
				PolicyType:       c.String("policy-type"),
			})
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return r.Render(entry)
		},
	}
}

// PruneResponse is the history prune output.
type PruneResponse struct {
	Removed int `json:"removed"`
}

func historyPruneCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Trim the history by age and count",
		Flags: append(ReadOnlyFlags(), append(StoreFlags(),
			&cli.IntFlag{
				Name:  "max-items",
				Usage: "Entries to keep (0 = settings file, then unbounded)",
			},
			&cli.DurationFlag{
				Name:  "max-age",
				Usage: "Oldest entry to keep, e.g. 720h (0 = settings file, then unbounded)",
			},
			&cli.BoolFlag{
				Name:  "keep-completed",
				Usage: "Exempt completed entries",
			},
		)...),
		Action: historyPruneAction,
	}
}

func historyPruneAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for history prune", 1)
	}
	settings, err := settingsFrom(c)
	if err != nil {
		return err
	}
	l, st, err := ledgerFrom(c, settings)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	maxItems := c.Int("max-items")
	if maxItems == 0 {
		maxItems = settings.Tracking.Prune.MaxItems
	}
	maxAge := c.Duration("max-age")
	if maxAge == 0 {
		maxAge = settings.Tracking.Prune.MaxAge.Duration
	}
	keepCompleted := c.Bool("keep-completed") || settings.Tracking.Prune.KeepCompleted

	removed, err := l.Prune(c.Context, maxItems, maxAge, keepCompleted)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(PruneResponse{Removed: removed})
}
