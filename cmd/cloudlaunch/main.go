// Command cloudlaunch runs the cloud region and run launch service.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Strob0t/CloudLaunch/internal/config"
	"github.com/Strob0t/CloudLaunch/internal/logger"
)

var (
	configPath string

	cfg       *config.Config
	logCloser logger.Closer
)

var rootCmd = &cobra.Command{
	Use:   "cloudlaunch",
	Short: "Manage cloud regions and launch runs into them",
	Long: `CloudLaunch keeps a registry of cloud regions with their credentials,
resolves launch requests into runs placed in those regions and moves stuck
runs to another region of the same provider.

Configuration precedence: defaults < YAML file < environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		var err error
		cfg, err = config.LoadFrom(configPath)
		if err != nil {
			return fmt.Errorf("config: %w", err)
		}
		var l *slog.Logger
		l, logCloser = logger.New(cfg.Logging)
		slog.SetDefault(l)
		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		if logCloser != nil {
			logCloser.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultConfigFile, "path to the YAML configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}
