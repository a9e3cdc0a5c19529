// Command stc compiles an XML scenario into a process flow and runs it
// against a worker-pool coordinator, or inspects a previous run's status
// record.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mensylisir/stc/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var logLevel string
	var verbose bool

	root := &cobra.Command{
		Use:           "stc",
		Short:         "Compile and run XML system-test scenarios",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				level = logrus.InfoLevel
			}
			return logger.InitGlobalLogger("", verbose, level)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "shorthand for --log-level=debug")

	root.AddCommand(newRunCmd(), newListCmd(), newListFailedCmd(), newValidateCmd())
	return root
}
