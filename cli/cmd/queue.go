package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/cli/render"
	"github.com/shiggityshwah/punchlist/config"
	"github.com/shiggityshwah/punchlist/ledger"
)

// QueueCommand returns the queue command with subcommands.
func QueueCommand() *cli.Command {
	return &cli.Command{
		Name:  "queue",
		Usage: "Manage the queue of forms awaiting processing",
		Subcommands: []*cli.Command{
			queueListCommand(),
			queueAddCommand(),
			queueRemoveCommand(),
			queueResolveCommand(),
		},
	}
}

func queueListCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List queued forms",
		Flags: append(ReadOnlyFlags(), StoreFlags()...),
		Action: func(c *cli.Context) error {
			r, err := render.NewRenderer(c)
			if err != nil {
				return err
			}
			if c.Bool("tui") {
				return cli.Exit("--tui is not supported for queue list", 1)
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

			queue, err := l.Queue(c.Context)
			if err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return r.Render(queue)
		},
	}
}

func queueAddCommand() *cli.Command {
	return &cli.Command{
		Name:  "add",
		Usage: "Queue a form by metadata flags, or a batch from a JSON file",
		Flags: append(StoreFlags(),
			&cli.StringFlag{
				Name:  "id",
				Usage: "Permanent tracking id (omit to derive a provisional one from --url)",
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Workflow URL of the form",
			},
			&cli.StringFlag{
				Name:  "policy-number",
				Usage: "Policy number",
			},
			&cli.StringFlag{
				Name:  "submission-number",
				Usage: "Submission number",
			},
			&cli.StringFlag{
				Name:  "premium",
				Usage: "Premium amount",
			},
			&cli.StringFlag{
				Name:  "broker",
				Usage: "Broker name",
			},
			&cli.StringFlag{
				Name:  "policy-type",
				Usage: "Policy type",
			},
			&cli.StringFlag{
				Name:  "file",
				Usage: "Path to a JSON array of queue entries to add as one batch",
			},
		),
		Action: queueAddAction,
	}
}

func queueAddAction(c *cli.Context) error {
	entries, err := queueEntriesFrom(c)
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

	if err := l.AddToQueue(c.Context, entries); err != nil {
		var dup *ledger.DuplicateError
		if errors.As(err, &dup) {
			return cli.Exit(fmt.Sprintf("already queued: %v", dup.IDs), 1)
		}
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// queueEntriesFrom builds the batch from --file or from the metadata
// flags. Mixing the two is rejected so a batch is always exactly what
// one source said.
func queueEntriesFrom(c *cli.Context) ([]ledger.QueueEntry, error) {
	flagEntry := ledger.QueueEntry{
		TrackingID:       c.String("id"),
		URL:              c.String("url"),
		PolicyNumber:     c.String("policy-number"),
		SubmissionNumber: c.String("submission-number"),
		Premium:          c.String("premium"),
		Broker:           c.String("broker"),
		PolicyType:       c.String("policy-type"),
	}

	if path := c.String("file"); path != "" {
		if flagEntry != (ledger.QueueEntry{}) {
			return nil, cli.Exit("--file cannot be combined with entry flags", 1)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, cli.Exit(err.Error(), 1)
		}
		var entries []ledger.QueueEntry
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, cli.Exit(fmt.Sprintf("%s: %v", path, err), 1)
		}
		if len(entries) == 0 {
			return nil, cli.Exit(fmt.Sprintf("%s: no entries", path), 1)
		}
		return entries, nil
	}

	if flagEntry.TrackingID == "" && flagEntry.URL == "" {
		return nil, cli.Exit("an --id or --url is required (or --file for a batch)", 1)
	}
	return []ledger.QueueEntry{flagEntry}, nil
}

func queueRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "remove",
		Usage:     "Remove a queued form",
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

			if err := l.RemoveFromQueue(c.Context, id); err != nil {
				return cli.Exit(err.Error(), 1)
			}
			return nil
		},
	}
}

// ResolveResponse is the queue resolve output.
type ResolveResponse struct {
	Resolved int `json:"resolved"`
}

func queueResolveCommand() *cli.Command {
	return &cli.Command{
		Name:  "resolve",
		Usage: "Promote provisional queue ids by following their workflow URLs",
		Flags: append(ReadOnlyFlags(), append(StoreFlags(),
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Resolution attempts this run (0 = stored setting)",
			},
		)...),
		Action: queueResolveAction,
	}
}

func queueResolveAction(c *cli.Context) error {
	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	if c.Bool("tui") {
		return cli.Exit("--tui is not supported for queue resolve", 1)
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

	// Settings-file and flag overrides are persisted before the run so
	// the stored document stays the single source ResolveQueue reads.
	if err := applyResolutionOverrides(c, settings, l); err != nil {
		return err
	}

	resolved, err := l.ResolveQueue(c.Context, &ledger.HTTPResolver{})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return r.Render(ResolveResponse{Resolved: resolved})
}

// applyResolutionOverrides folds punchlist.yaml and --limit into the
// stored tracking settings.
func applyResolutionOverrides(c *cli.Context, settings *config.Settings, l *ledger.Ledger) error {
	stored, err := l.Settings(c.Context)
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	changed := false
	if v := settings.Tracking.URLResolution.Enabled; v != nil && stored.URLResolution.Enabled != *v {
		stored.URLResolution.Enabled = *v
		changed = true
	}
	if v := settings.Tracking.URLResolution.Limit; v != nil && stored.URLResolution.Limit != *v {
		stored.URLResolution.Limit = *v
		changed = true
	}
	if c.IsSet("limit") && stored.URLResolution.Limit != c.Int("limit") {
		stored.URLResolution.Limit = c.Int("limit")
		changed = true
	}
	if !changed {
		return nil
	}
	if err := l.SaveSettings(c.Context, stored); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}
