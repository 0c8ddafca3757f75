// Command bltool runs the sectorbl engine from the terminal: price import,
// scenarios, backtests and Monte Carlo projections.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/aristath/sectorbl/pkg/logger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const appName = "bltool"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Black-Litterman sector allocation toolkit",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level, _ := cmd.Flags().GetString("log-level")
			logger.SetGlobalLogger(logger.New(logger.Config{
				Level:  level,
				Pretty: true,
				Output: os.Stderr,
			}))
		},
	}
	root.PersistentFlags().String("log-level", "warn", "Log level (debug|info|warn|error)")

	root.AddCommand(
		newImportCmd(),
		newScenarioCmd(),
		newBacktestCmd(),
		newMonteCarloCmd(),
	)
	return root
}
