// Package cli is the fastfare command line: the tracking service, token
// tooling and a courier simulator.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"fastfare/internal/shared/config"
)

var configDir string

var rootCmd = &cobra.Command{
	Use:           "fastfare",
	Short:         "Real-time courier tracking for FastFare",
	Long:          `fastfare tracks courier positions over WebSocket, fans them out to dashboards and customers, and serves a fleet view joined with parcel assignments.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", "", "directory with the YAML config files (default $CONFIG_DIR or ./config)")

	rootCmd.AddCommand(newServeCmd(), newTokenCmd(), newSimulateCmd())
}

func loadConfig() (config.Config, error) {
	if configDir != "" {
		return config.LoadFrom(configDir)
	}
	return config.Load()
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
