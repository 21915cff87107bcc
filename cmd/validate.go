package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/framestream/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long: `Load and validate the configuration file without opening any stream.

Examples:
  framestream validate -c framestream.yml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(configFile, cmd.OutOrStdout())
	},
}

// runValidate prints one line per stream after the file passed validation.
func runValidate(path string, out io.Writer) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("INVALID: %w", err)
	}

	fmt.Fprintf(out, "VALID: %d stream(s), metadata reporter %s\n", len(cfg.Streams), cfg.Metadata.Reporter)
	for _, s := range cfg.Streams {
		from := s.Address
		if from == "" {
			from = "replay " + s.Replay.File
		}
		line := fmt.Sprintf("  %s: %s, %s mode, picker %s, buffer %d", s.Name, from, s.Mode, s.Picker, s.BufferLen)
		if s.Reference != "" {
			line += ", reference " + s.Reference
		}
		fmt.Fprintln(out, line)
	}
	return nil
}
