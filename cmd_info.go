package main

import (
	"github.com/spf13/cobra"

	"github.com/dinhngtu/uvtester/systeminfo"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "info",
		Aliases: []string{"list", "print"},
		Short:   "Print host CPU information relevant to the self-check",
		Args:    cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			systeminfo.PrintSystemInfo(cmd.OutOrStdout(), systeminfo.GetSystemInfo())
		},
	}
}
