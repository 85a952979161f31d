package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd(info BuildInfo) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s-%s-%s\n", info.Version, info.CommitDate, info.CommitHash)
			if info.BuildDate != "unknown" && info.BuildDate != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "built %s\n", info.BuildDate)
			}
		},
	}
}
