// Command waterfall-bridge exports collections from one Waterfall instance
// and imports them into another, over HTTP, as a plugin, or one-shot.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	bridge "github.com/schemabounce/waterfall-bridge"
	"github.com/schemabounce/waterfall-bridge/config"
)

var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:           "waterfall-bridge",
		Short:         "Move Waterfall collections between service instances",
		Long:          `Exports a collection from a Waterfall data service as JSON, CSV or Mermaid and imports such files into another instance, re-linking references along the way.`,
		Version:       bridge.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the log level (trace, debug, info, warn, error)")

	rootCmd.AddCommand(serveCmd, pluginCmd, exportCmd, importCmd)
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	cfg.ApplyLogging()
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
