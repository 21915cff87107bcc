package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/framestream/internal/daemon"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run every configured stream in foreground",
	Long: `Run the framestream daemon in foreground.

The daemon will:
  1. Load configuration from the config file
  2. Initialize logging, metrics and the metadata reporter
  3. Open every configured stream and tick it at its interval
  4. Handle signals for graceful shutdown (SIGTERM, SIGINT) and reload (SIGHUP)

It exits when it is signalled or when every stream has ended.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(configFile, pidFile)
	},
}

var pidFile string

func init() {
	runCmd.Flags().StringVarP(&pidFile, "pidfile", "p", "",
		"PID file path (disabled when empty)")
}

func runDaemon(configPath, pidPath string) error {
	d, err := daemon.New(configPath, pidPath)
	if err != nil {
		return fmt.Errorf("failed to create daemon: %w", err)
	}
	if err := d.Start(); err != nil {
		d.Stop()
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	// Blocks until shutdown
	return d.Run()
}
