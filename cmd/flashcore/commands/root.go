// Package commands implements the CLI commands for the flashcore tool.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// configPath is the --config persistent flag value.
var configPath string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "flashcore",
	Short: "Flashcore - Managed flash device tool",
	Long: `flashcore manages a wear-leveled flash device: provisioning scans,
wear statistics, and burn-in testing.

The device geometry, backing medium, and wear policy come from the
configuration file (see 'flashcore init'). All configuration options can
be overridden with FLASHCORE_* environment variables.

Use "flashcore [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to config file (default: $XDG_CONFIG_HOME/flashcore/config.yaml)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(burninCmd)
}
