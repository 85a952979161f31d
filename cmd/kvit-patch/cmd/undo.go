package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kvit-s/kvit-patch/internal/checkpoint"
	"github.com/kvit-s/kvit-patch/internal/ui"
	"github.com/kvit-s/kvit-patch/internal/workspace"
)

func newUndoCmd(rf *rootFlags) *cobra.Command {
	var showDiff bool

	c := &cobra.Command{
		Use:   "undo [run-id]",
		Short: "Restore a file to its content before a run wrote it",
		Long: `Restore the file written by run [run-id], or by the most recent run, from its
checkpoint. A file the run created is removed. With --diff nothing is restored and
the change undo would make is printed instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}

			a, mgr, err := setupCheckpoints(cmd, rf)
			if err != nil {
				return err
			}
			defer a.log.Close()

			if showDiff {
				entry, diff, err := mgr.Diff(runID, a.cfg.DiffContext())
				if err != nil {
					return err
				}
				if diff == "" {
					a.out.Info(fmt.Sprintf("%s already matches run %s's checkpoint", entry.Path, entry.RunID))
					return nil
				}
				a.out.Diff(diff)
				return nil
			}

			if a.cfg.LockEnabled() {
				lock, err := workspace.Acquire(cmd.Context(), a.cfg.Workspace.Root, 2*time.Second)
				if err != nil {
					return err
				}
				defer lock.Release()
			}

			entry, err := mgr.Restore(runID)
			if err != nil {
				return err
			}
			a.log.Info("run undone", zap.String("run_id", entry.RunID), zap.String("path", entry.Path))
			if entry.Existed {
				a.out.Success(fmt.Sprintf("restored %s (%s) from run %s", entry.Path, ui.FormatBytes(entry.Size), entry.RunID))
			} else {
				a.out.Success(fmt.Sprintf("removed %s, created by run %s", entry.Path, entry.RunID))
			}
			return nil
		},
	}

	c.Flags().BoolVar(&showDiff, "diff", false, "print what undo would change without restoring")
	return c
}

func newHistoryCmd(rf *rootFlags) *cobra.Command {
	var clearAll bool

	c := &cobra.Command{
		Use:   "history",
		Short: "List the runs that can be undone, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, mgr, err := setupCheckpoints(cmd, rf)
			if err != nil {
				return err
			}
			defer a.log.Close()

			if clearAll {
				if err := mgr.Cleanup(); err != nil {
					return fmt.Errorf("failed to clear checkpoints: %w", err)
				}
				a.log.Info("checkpoints cleared")
				a.out.Success("checkpoints cleared")
				return nil
			}

			entries, err := mgr.List()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				a.out.Info("no checkpoints")
				return nil
			}
			for _, e := range entries {
				note := ""
				if !e.Existed {
					note = " (created)"
				}
				a.out.Text(fmt.Sprintf("%s  %s  %s%s\n", e.RunID, e.CreatedAt.Local().Format(time.DateTime), e.Path, note))
			}
			return nil
		},
	}

	c.Flags().BoolVar(&clearAll, "clear", false, "delete every checkpoint")
	return c
}

func setupCheckpoints(cmd *cobra.Command, rf *rootFlags) (*app, *checkpoint.Manager, error) {
	a, err := setup(cmd, rf, false)
	if err != nil {
		return nil, nil, err
	}
	if !a.cfg.CheckpointsEnabled() {
		a.log.Close()
		return nil, nil, errors.New("checkpoints are disabled (workspace.checkpoints < 0)")
	}
	mgr, err := checkpoint.NewManager(a.cfg.Workspace.Root, a.cfg.Workspace.Checkpoints)
	if err != nil {
		a.log.Close()
		return nil, nil, err
	}
	return a, mgr, nil
}
