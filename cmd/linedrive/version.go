package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/winson8942-oss/line-drive-bot/internal/version"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "linedrive %s\n", version.GetInfo())
		},
	}
}
