// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "framestream",
	Short: "framestream - sensor frame buffering and selection",
	Long: `framestream receives framed sensor packets from remote devices, keeps a
bounded history per stream and picks frames for presentation by latest,
nearest timestamp or exact sequence.

Streams run either in sync mode, where each tick drains whatever arrived
without blocking, or in async mode, where a producer goroutine drains the
transport and the tick only selects.`,
	Version:      "0.1.0",
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "/etc/framestream/framestream.yml",
		"config file path")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(validateCmd)
}
