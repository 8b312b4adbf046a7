package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dreschagin/session-telemetry/pkg/config"
	"github.com/dreschagin/session-telemetry/pkg/logger"
	"github.com/spf13/cobra"
)

var dataDirFlag string

var rootCmd = &cobra.Command{
	Use:           "telemetryctl",
	Short:         "Inspect and manage locally buffered telemetry sessions",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "data directory (overrides DATA_DIR)")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if dataDirFlag != "" {
		cfg.Storage.DataDir = dataDirFlag
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) *logger.Logger {
	return logger.NewWithOutput(cfg.LogLevel, os.Stderr)
}
