// Package cli implements the comiccache command line: the HTTP service plus
// one-shot commands for fetching, backfilling, sweeping and listing the cache.
package cli

import (
	"fmt"
	"os"

	"github.com/illmade-knight/go-comiccache/pkg/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// Version is reported by --version.
const Version = "0.3.0"

// Global flags
var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "comiccache",
	Short:         "comiccache – daily comic image cache",
	Long:          `Keeps the daily comic images on local or cloud storage, prefetching around the viewing position and sweeping days that fall out of the retention window.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (overrides config)")
}

// loadConfig reads the configuration and builds the logger for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := config.NewLogger(cfg.LogLevel, cmd.ErrOrStderr()).With().Str("service", cfg.ServiceName).Logger()
	return cfg, logger, nil
}
