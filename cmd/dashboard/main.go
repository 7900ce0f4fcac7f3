package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ieeeucsd/dashboard-finance/internal/config"
	"github.com/ieeeucsd/dashboard-finance/internal/container"
	httpapi "github.com/ieeeucsd/dashboard-finance/internal/interfaces/http"
	"github.com/ieeeucsd/dashboard-finance/pkg/utils"
)

var Version = "dev"

var configPath string

func main() {
	httpapi.Version = Version

	rootCmd := &cobra.Command{
		Use:           "dashboard",
		Short:         "IEEE UCSD dashboard finance service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML config file (empty for env only)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(filesCmd())
	rootCmd.AddCommand(eventsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger every command shares
func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := utils.NewLogger(container.LoggerConfig(cfg))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}
