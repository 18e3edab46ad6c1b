package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/stanstork/reconciler/internal/config"
	"github.com/stanstork/reconciler/internal/migration"
)

func newRootCmd(logger zerolog.Logger) *cobra.Command {
	var configPath string
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "reconciler",
		Short:         "BO/partner reconciliation service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if configPath != "" {
				cfg, err = config.LoadFile(configPath)
			} else {
				cfg, err = config.Load()
			}
			if err != nil {
				return err
			}
			if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
				zerolog.SetGlobalLevel(lvl)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the HTTP API, the worker pool and the sweeper",
			RunE: func(cmd *cobra.Command, args []string) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				app, err := newApplication(ctx, cfg, logger)
				if err != nil {
					return err
				}
				defer app.close()
				return app.serve(ctx)
			},
		},
		&cobra.Command{
			Use:   "migrate",
			Short: "Apply database migrations",
			RunE: func(cmd *cobra.Command, args []string) error {
				if cfg.DatabaseURL == "" {
					return errors.New("database_url is not set")
				}
				return migration.RunMigrations(cmd.Context(), cfg.DatabaseURL, logger)
			},
		},
		&cobra.Command{
			Use:   "sweep",
			Short: "Remove expired locks and old jobs once, then exit",
			RunE: func(cmd *cobra.Command, args []string) error {
				app, err := newApplication(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer app.close()
				locks, jobs := app.sweeper.RunOnce(cmd.Context())
				logger.Info().Int64("locks", locks).Int64("jobs", jobs).Msg("sweep finished")
				return nil
			},
		},
	)
	return root
}
