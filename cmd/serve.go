package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/spf13/cobra"

	"github.com/ddworken/analytics-ingest/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the ingestion endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup()
		if err != nil {
			return err
		}
		db, err := openDB(cfg, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.AddDatabaseTables(); err != nil {
			return err
		}

		options := []server.Option{
			server.WithLogger(logger),
			server.WithReleaseVersion(ReleaseVersion),
			server.IsProductionEnvironment(cfg.IsProduction()),
		}
		if cfg.StatsdAddr != "" {
			statsdClient, err := statsd.New(cfg.StatsdAddr)
			if err != nil {
				return fmt.Errorf("statsd.New: %w", err)
			}
			defer statsdClient.Close()
			options = append(options, server.WithStatsd(statsdClient))
		}
		srv := server.NewServer(db, cfg.APIKey, options...)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if cfg.DebugAddr != "" {
			go func() {
				if err := srv.RunDebug(ctx, cfg.DebugAddr, db); err != nil {
					logger.WithError(err).Error("debug listener stopped")
				}
			}()
		}
		return srv.Run(ctx, cfg.ListenAddr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
