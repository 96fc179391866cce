// Package cli implements the circuitctl commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/bizmatters/agent-builder/circuit-designer/internal/config"
)

// Set by cmd/circuitctl at build time
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var configPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:          "circuitctl",
	Short:        "Offline tools for the circuit designer",
	Long:         "Extract circuits from a description and validate circuit designs against BS 7671 without running the API server.",
	SilenceUsage: true,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $CONFIG_FILE)")
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	return config.Load(path)
}

func printJSON(cmd *cobra.Command, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	return nil
}
