package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dinhngtu/uvtester/utils"
)

// errDivergence marks a run that observed at least one bad result.
var errDivergence = errors.New("self-check divergence detected")

var (
	debugFlag bool
	logFile   string
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "uvtester",
		Short:         "CPU self-check stress tester",
		Long:          "uvtester generates self-checking arithmetic loops and runs them on every core to detect\nundervolting and overclocking faults.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return utils.InitLogger(debugFlag, logFile)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			utils.SyncLogger()
		},
	}
	root.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug mode")
	root.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file")

	root.AddCommand(newRunCmd(), newDisasmCmd(), newInfoCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errDivergence) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
