package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kvit-s/kvit-patch/internal/checkpoint"
	"github.com/kvit-s/kvit-patch/internal/patch"
	"github.com/kvit-s/kvit-patch/internal/runner"
	"github.com/kvit-s/kvit-patch/internal/source"
	"github.com/kvit-s/kvit-patch/internal/tui"
	"github.com/kvit-s/kvit-patch/internal/ui"
)

type command int

const (
	cmdApply command = iota
	cmdCheck
	cmdReview
)

type applyFlags struct {
	diff         string
	clipboard    bool
	markdown     bool
	header       string
	body         string
	bestEffort   bool
	verifyCounts bool
	preview      bool
	confirm      bool
	output       string
	json         bool
}

func newApplyCmd(rf *rootFlags, kind command) *cobra.Command {
	f := &applyFlags{}

	c := &cobra.Command{
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, rf, f, kind, args)
		},
	}

	switch kind {
	case cmdApply:
		c.Use = "apply [file]"
		c.Short = "Apply a diff to a file"
		c.Long = `Apply a single-file unified diff. Without [file] the target is taken from the
diff's +++ line. The diff is read from --diff, --clipboard, --header/--body, or stdin.`
	case cmdCheck:
		c.Use = "check [file]"
		c.Short = "Report whether a diff applies, without writing"
	case cmdReview:
		c.Use = "review [file]"
		c.Short = "Pick the hunks to apply in an interactive view"
	}

	flags := c.Flags()
	flags.StringVarP(&f.diff, "diff", "d", "", `read the diff from this file ("-" for stdin)`)
	flags.BoolVar(&f.clipboard, "clipboard", false, "read the diff from the clipboard")
	flags.BoolVar(&f.markdown, "markdown", false, "input is markdown; use its first ```diff block")
	flags.StringVar(&f.header, "header", "", "hunk header, used with --body")
	flags.StringVar(&f.body, "body", "", "hunk body, used with --header")
	flags.BoolVar(&f.bestEffort, "best-effort", false, "skip hunks whose context does not match instead of failing")
	flags.BoolVar(&f.verifyCounts, "verify-counts", false, "reject hunks whose header counts disagree with the body")
	flags.BoolVar(&f.json, "json", false, "print the result as JSON on stdout")
	if kind != cmdCheck {
		flags.BoolVar(&f.preview, "preview", false, "print the resulting diff instead of writing")
		flags.BoolVar(&f.confirm, "confirm", false, "ask before writing")
		flags.StringVarP(&f.output, "output", "o", "", "write the result to this path instead of the target")
	}
	return c
}

func runApply(cmd *cobra.Command, rf *rootFlags, f *applyFlags, kind command, args []string) error {
	a, err := setup(cmd, rf, f.json)
	if err != nil {
		return err
	}
	defer a.log.Close()

	diffText, err := source.Load(source.Options{
		DiffPath:  f.diff,
		Clipboard: f.clipboard,
		Header:    f.header,
		Body:      f.body,
		Markdown:  f.markdown,
	})
	if err != nil {
		a.log.Error("failed to read diff", err)
		if a.out.IsJSONMode() {
			a.out.WriteJSON(toJSON(runner.Request{}, nil, err))
			return reportedError{err}
		}
		return err
	}

	req := runner.Request{
		Diff:         diffText,
		Policy:       a.cfg.Policy(),
		VerifyCounts: a.cfg.Patch.VerifyCounts || f.verifyCounts,
		Confirm:      a.cfg.Patch.Confirm || f.confirm,
		OutputPath:   f.output,
	}
	if len(args) == 1 {
		req.Path = args[0]
	}
	if f.bestEffort {
		req.Policy = patch.BestEffort
	}
	switch {
	case kind == cmdCheck:
		req.Mode = runner.ModeCheck
	case f.preview || a.cfg.Patch.PreviewMode:
		req.Mode = runner.ModePreview
	}
	if kind == cmdReview {
		req.Select = tui.Review
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []runner.Option{runner.WithConfirm(a.out.Confirm)}
	if a.cfg.CheckpointsEnabled() {
		mgr, err := checkpoint.NewManager(a.cfg.Workspace.Root, a.cfg.Workspace.Checkpoints)
		if err != nil {
			return err
		}
		opts = append(opts, runner.WithCheckpoints(mgr))
	}

	r := runner.New(a.cfg, a.log, opts...)
	outcome, err := r.Run(ctx, req)
	report(a.out, rf.verbose, req, outcome, err)
	if err != nil {
		return reportedError{err}
	}
	return nil
}

// report prints the outcome of a run for humans, or as one JSON document.
func report(out *ui.Writer, verbose bool, req runner.Request, o *runner.Outcome, err error) {
	if out.IsJSONMode() {
		out.WriteJSON(toJSON(req, o, err))
		return
	}

	if err != nil {
		out.Error(err.Error())
		if patch.IsRetryable(err) {
			out.Info("the diff does not fit the current file; regenerate it against the file as it is now")
		}
		return
	}

	for _, s := range o.Skipped {
		out.Warn(fmt.Sprintf("hunk %d skipped: %s", s.Index+1, skipReason(s)))
	}

	switch {
	case req.Mode == runner.ModeCheck:
		out.Success(fmt.Sprintf("%s: %s apply (%s)", o.Rel, ui.Plural(len(o.Applied), "hunk"), o.Stats))
	case req.Mode == runner.ModePreview:
		out.Diff(o.Diff)
		out.Info(fmt.Sprintf("%s: %s, not written", o.Rel, o.Stats))
	case o.Declined:
		out.Warn(fmt.Sprintf("%s not written", o.Rel))
	case o.Written:
		if verbose {
			out.Diff(o.Diff)
		}
		verb := "patched"
		if o.Created {
			verb = "created"
		}
		out.Success(fmt.Sprintf("%s %s: %s, %s in %s", verb, o.Rel, o.Stats,
			ui.FormatBytes(o.Stats.BytesAfter), ui.FormatDuration(o.Duration)))
	default:
		out.Info(fmt.Sprintf("%s unchanged", o.Rel))
	}
}

func status(req runner.Request, o *runner.Outcome, err error) string {
	switch {
	case err != nil:
		return "failed"
	case req.Mode == runner.ModeCheck:
		return "checked"
	case req.Mode == runner.ModePreview:
		return "preview"
	case o.Declined:
		return "declined"
	default:
		return "applied"
	}
}

func toJSON(req runner.Request, o *runner.Outcome, err error) ui.JSONOutput {
	doc := ui.JSONOutput{Status: status(req, o, err)}

	if o != nil {
		doc.RunID = o.RunID
		doc.Path = o.Rel
		doc.Written = o.Written
		for _, i := range o.Applied {
			doc.Applied = append(doc.Applied, i+1)
		}
		for _, s := range o.Skipped {
			skipped := ui.JSONSkipped{Hunk: s.Index + 1, Reason: skipReason(s)}
			if s.Err != nil {
				skipped.Line = s.Err.Line
			}
			doc.Skipped = append(doc.Skipped, skipped)
		}
		if o.Result != nil {
			st := o.Stats
			doc.Stats = &st
			doc.Diff = o.Diff
		}
	}

	if err != nil {
		doc.Error = &ui.JSONError{
			Message:   err.Error(),
			Retryable: patch.IsRetryable(err),
		}
		if pe, ok := patch.AsError(err); ok {
			doc.Error.Details = pe.Details()
		}
	}
	return doc
}

func skipReason(s patch.Skipped) string {
	if s.Err == nil {
		return "skipped"
	}
	return s.Err.Msg
}
