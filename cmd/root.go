package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ddworken/analytics-ingest/internal/config"
	"github.com/ddworken/analytics-ingest/internal/database"
	"github.com/ddworken/analytics-ingest/internal/logging"
)

// ReleaseVersion is set at build time via -ldflags.
var ReleaseVersion string = "UNKNOWN"

var rootCmd = &cobra.Command{
	Use:          "analytics-ingest",
	Short:        "Ingestion endpoint for client telemetry reports",
	SilenceUsage: true,
}

// Execute runs the command named on the command line. This is called by main.main().
func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = ReleaseVersion
}

// setup loads the config and builds the logger every subcommand shares.
func setup() (*config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func openDB(cfg *config.Config, logger logrus.FieldLogger) (*database.DB, error) {
	gormConfig := database.NewGormConfig(logging.GormLogger(logger))
	switch cfg.DatabaseDriver {
	case config.DriverSQLite:
		return database.OpenSQLite(cfg.DatabaseURL, gormConfig)
	case config.DriverPostgres:
		return database.OpenPostgres(cfg.DatabaseURL, gormConfig)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
}
