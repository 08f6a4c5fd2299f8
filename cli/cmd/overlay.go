package cmd

import (
	"bufio"
	"context"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/shiggityshwah/punchlist/checklist"
	"github.com/shiggityshwah/punchlist/field"
	"github.com/shiggityshwah/punchlist/log"
	"github.com/shiggityshwah/punchlist/normalize"
	"github.com/shiggityshwah/punchlist/surface"
	"github.com/shiggityshwah/punchlist/types"
)

// OverlayCommand returns the overlay command: the surface that owns the
// form fields. Without a real page to attach to, fields live in an
// in-memory accessor and edits arrive on stdin.
func OverlayCommand() *cli.Command {
	return &cli.Command{
		Name:  "overlay",
		Usage: "Run the form-owning overlay surface",
		Description: "Runs the surface that owns the session's form fields. Fields are\n" +
			"declared from the checklist definition's locators and edited by\n" +
			"writing lines to stdin:\n\n" +
			"   <locator> <value>\n\n" +
			"Blank lines and lines starting with // are ignored. Peer surfaces'\n" +
			"confirms, skips, and field updates apply here; normalization\n" +
			"suggestions for edited fields are logged.\n\n" +
			"Without --session a fresh session id is generated and logged.",
		Flags:  SurfaceFlags(),
		Action: overlayAction,
	}
}

func overlayAction(c *cli.Context) error {
	settings, err := settingsFrom(c)
	if err != nil {
		return err
	}
	def, err := definitionFrom(c)
	if err != nil {
		return err
	}
	logger := log.NewLogger("overlay")
	session, err := sessionFrom(c, true, logger)
	if err != nil {
		return err
	}
	st, err := storeFrom(c, settings)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	acc := field.NewMemAccessor()
	if err := defineFields(acc, def); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	coord, err := surface.NewCoordinator(surface.Config{
		SessionID:    session,
		Surface:      types.SurfaceOverlay,
		Definition:   *def,
		Store:        st,
		Renderer:     &overlayRenderer{logger: logger, names: def.DisplayNames()},
		Dial:         dialerFrom(c, settings),
		Fields:       acc,
		Logger:       logger,
		Backoff:      backoffFrom(settings),
		PollInterval: settings.Surface.PollInterval.Duration,
	})
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()
	go readFieldEdits(ctx, os.Stdin, acc, logger)

	if err := coord.Run(ctx); err != nil {
		return cli.Exit(err.Error(), 1)
	}
	return nil
}

// defineFields declares one in-memory field per definition locator.
func defineFields(acc *field.MemAccessor, def *checklist.Definition) error {
	for _, step := range def.Steps {
		kind := fieldKind(step.Type)
		for _, loc := range step.Locators {
			if err := acc.Define(field.Locator(loc), field.Spec{Kind: kind}); err != nil {
				return err
			}
		}
	}
	return nil
}

func fieldKind(t checklist.StepType) field.Kind {
	switch t {
	case checklist.StepCheckbox:
		return field.KindCheckbox
	case checklist.StepSelect:
		return field.KindSelect
	case checklist.StepMulti:
		return field.KindMulti
	default:
		return field.KindText
	}
}

// readFieldEdits applies "<locator> <value>" lines from in to the
// accessor until in closes or ctx ends. Rejected edits are logged and
// skipped.
func readFieldEdits(ctx context.Context, in io.Reader, acc *field.MemAccessor, logger *log.Logger) {
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(sc.Text())
		// Locators are CSS selectors, so # cannot mark comments.
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		loc, value, _ := strings.Cut(line, " ")
		if err := acc.SetValue(field.Locator(loc), strings.TrimSpace(value)); err != nil {
			logger.Warn("field edit rejected", map[string]any{
				"locator": loc,
				"error":   err.Error(),
			})
		}
	}
}

// overlayRenderer is the headless display: checklist updates become log
// lines, which is all a field-owning surface needs when no page exists.
type overlayRenderer struct {
	logger *log.Logger
	names  []string
}

func (r *overlayRenderer) Render(state checklist.State, currentStep int) {
	processed, skipped := state.Counts()
	fields := map[string]any{
		"processed":    processed,
		"skipped":      skipped,
		"total":        len(state),
		"current_step": currentStep,
	}
	if currentStep >= 0 && currentStep < len(r.names) {
		fields["current_name"] = r.names[currentStep]
	}
	r.logger.Info("checklist", fields)
}

func (r *overlayRenderer) Notify(text string) {
	r.logger.Info("notice", map[string]any{"text": text})
}

func (r *overlayRenderer) ConnectionChanged(state surface.ConnState) {
	// The coordinator already logs transitions; this is display-only.
	r.logger.Debug("connection", map[string]any{"state": string(state)})
}

func (r *overlayRenderer) Suggest(loc field.Locator, result normalize.Result) {
	r.logger.Warn("normalization suggestion", map[string]any{
		"locator": string(loc),
		"fixed":   result.FixedValue,
		"message": result.Message,
	})
}
