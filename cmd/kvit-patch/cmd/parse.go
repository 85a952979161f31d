package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kvit-s/kvit-patch/internal/patch"
	"github.com/kvit-s/kvit-patch/internal/source"
	"github.com/kvit-s/kvit-patch/internal/ui"
)

type parseFlags struct {
	diff      string
	clipboard bool
	markdown  bool
	recount   bool
	yaml      bool
	json      bool
}

func newParseCmd(rf *rootFlags) *cobra.Command {
	f := &parseFlags{}

	c := &cobra.Command{
		Use:   "parse",
		Short: "Print the hunks of a diff in normalized form",
		Long: `Parse a diff and print its hunks with explicit header counts. File lines and
any text before the first hunk are dropped. With --recount the header counts are
rewritten from the hunk bodies.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runParse(cmd, rf, f)
		},
	}

	flags := c.Flags()
	flags.StringVarP(&f.diff, "diff", "d", "", `read the diff from this file ("-" for stdin)`)
	flags.BoolVar(&f.clipboard, "clipboard", false, "read the diff from the clipboard")
	flags.BoolVar(&f.markdown, "markdown", false, "input is markdown; use its first ```diff block")
	flags.BoolVar(&f.recount, "recount", false, "rewrite header counts from the hunk bodies")
	flags.BoolVar(&f.yaml, "yaml", false, "print hunks as YAML")
	flags.BoolVar(&f.json, "json", false, "print hunks as JSON")
	c.MarkFlagsMutuallyExclusive("yaml", "json")
	return c
}

func runParse(cmd *cobra.Command, rf *rootFlags, f *parseFlags) error {
	out := ui.NewWriterTo(cmd.OutOrStdout(), cmd.ErrOrStderr())
	out.SetQuiet(rf.quiet || f.yaml || f.json)
	out.SetVerbose(rf.verbose)

	diffText, err := source.Load(source.Options{
		DiffPath:  f.diff,
		Clipboard: f.clipboard,
		Markdown:  f.markdown,
	})
	if err != nil {
		return err
	}

	hunks, err := patch.Parse(diffText)
	if err != nil {
		return err
	}

	recounted := 0
	if f.recount {
		for i := range hunks {
			oldCount, newCount := hunks[i].OldCount, hunks[i].NewCount
			hunks[i].Recount()
			if hunks[i].OldCount != oldCount || hunks[i].NewCount != newCount {
				out.Debug(fmt.Sprintf("hunk %d: %s", i+1, hunks[i].Header()))
				recounted++
			}
		}
	}

	switch {
	case f.yaml:
		enc := yaml.NewEncoder(out.Stdout())
		enc.SetIndent(2)
		if err := enc.Encode(hunks); err != nil {
			return err
		}
		return enc.Close()
	case f.json:
		data, err := json.MarshalIndent(hunks, "", "  ")
		if err != nil {
			return err
		}
		out.Text(string(data) + "\n")
	default:
		out.Diff(patch.Format(hunks))
	}

	msg := ui.Plural(len(hunks), "hunk")
	if f.recount {
		msg += fmt.Sprintf(", %d recounted", recounted)
	}
	out.Info(msg)
	return nil
}
