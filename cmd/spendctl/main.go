package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"spendwise/internal/cli"
	"spendwise/internal/config"
	applog "spendwise/internal/log"
)

// app is shared by every subcommand once PersistentPreRunE has run.
type app struct {
	cfg    *config.Config
	logger *applog.Logger
	rt     *cli.Runtime
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var logLevel string

	root := &cobra.Command{
		Use:           "spendctl",
		Short:         "Operate the spendwise expense classifier",
		Long:          `Import transactions, manage categories and train or query the expense classifier.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli.LoadEnvFile()
			a.logger = applog.New(applog.Config{
				Level:     applog.ParseLevel(logLevel),
				Component: "spendctl",
				Output:    cmd.ErrOrStderr(),
			})

			a.cfg = config.Load()
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			rt, err := cli.InitRuntime(cmd.Context(), a.logger, a.cfg)
			if err != nil {
				return fmt.Errorf("initialize backends: %w", err)
			}
			a.rt = rt
			return nil
		},
		PersistentPostRunE: func(*cobra.Command, []string) error {
			if a.rt == nil {
				return nil
			}
			return a.rt.Close()
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		importCmd(a),
		seedCategoriesCmd(a),
		categoriesCmd(a),
		transactionsCmd(a),
		unlabeledCmd(a),
		labelCmd(a),
		retrainCmd(a),
		metricsCmd(a),
		predictCmd(a),
		predictUnlabeledCmd(a),
	)
	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
