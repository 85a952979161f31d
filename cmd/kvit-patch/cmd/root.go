// Package cmd holds the kvit-patch command tree.
package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kvit-s/kvit-patch/internal/config"
	"github.com/kvit-s/kvit-patch/internal/patch"
	"github.com/kvit-s/kvit-patch/internal/runner"
	"github.com/kvit-s/kvit-patch/internal/ui"
)

// Exit codes
const (
	exitOK       = 0
	exitRuntime  = 1 // I/O, config, flags, lock
	exitRejected = 2 // the diff is malformed
	exitNoFit    = 3 // the diff is well formed but does not apply; regenerate and retry
)

// BuildInfo is filled from ldflags by main.
type BuildInfo struct {
	Version    string
	CommitHash string
	CommitDate string
	BuildDate  string
}

type rootFlags struct {
	configPath string
	logPath    string
	quiet      bool
	verbose    bool
}

// newRootCmd builds the base command and all subcommands.
func newRootCmd(info BuildInfo) *cobra.Command {
	rf := &rootFlags{}

	root := &cobra.Command{
		Use:   "kvit-patch",
		Short: "Apply unified diffs exactly, or not at all",
		Long: `kvit-patch applies a single-file unified diff. Every context and deleted line
must match the file at the position its hunk header names; otherwise nothing is
written and the exit code tells a malformed diff (2) from one that does not fit
the current file (3).`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&rf.configPath, "config", "", "path to config file (default: ./"+config.DefaultPath+" if present)")
	pf.StringVar(&rf.logPath, "log", "", "append JSON run log to this file (overrides log.path)")
	pf.BoolVarP(&rf.quiet, "quiet", "q", false, "only print results and errors")
	pf.BoolVarP(&rf.verbose, "verbose", "v", false, "print debug messages and the resulting diff")

	root.AddCommand(
		newApplyCmd(rf, cmdApply),
		newApplyCmd(rf, cmdCheck),
		newApplyCmd(rf, cmdReview),
		newParseCmd(rf),
		newUndoCmd(rf),
		newHistoryCmd(rf),
		newVersionCmd(info),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(info BuildInfo) int {
	return execute(newRootCmd(info))
}

func execute(root *cobra.Command) int {
	err := root.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}
	var shown reportedError
	if !errors.As(err, &shown) {
		ui.NewWriterTo(root.OutOrStdout(), root.ErrOrStderr()).Error(err.Error())
	}
	return exitCode(err)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, runner.ErrMissing):
		return exitRuntime
	case patch.IsParseError(err):
		return exitRejected
	case patch.IsRetryable(err):
		return exitNoFit
	default:
		return exitRuntime
	}
}

// reportedError marks an error the command has already shown to the user.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// app is what every subcommand needs after flags are parsed.
type app struct {
	cfg *config.Config
	log *runner.Logger
	out *ui.Writer
}

func setup(cmd *cobra.Command, rf *rootFlags, jsonMode bool) (*app, error) {
	out := ui.NewWriterTo(cmd.OutOrStdout(), cmd.ErrOrStderr())
	out.SetQuiet(rf.quiet)
	out.SetVerbose(rf.verbose)
	out.SetJSONMode(jsonMode)

	var cfg *config.Config
	var err error
	if rf.configPath == "" {
		cfg, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(rf.configPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logPath := cfg.Log.Path
	if rf.logPath != "" {
		logPath = rf.logPath
	}
	logger, err := runner.NewLogger(logPath, cfg.Log.Development)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", logPath, err)
	}

	out.Debug(fmt.Sprintf("workspace %s, policy %s", cfg.Workspace.Root, cfg.Policy()))
	return &app{cfg: cfg, log: logger, out: out}, nil
}
