package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/framestream/internal/config"
	"firestige.xyz/framestream/internal/daemon"
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture.pcap>",
	Short: "Replay one stream from a pcap capture",
	Long: `Replay a recorded sensor stream from a pcap file as if it came from a
live device. Every UDP datagram (optionally filtered by destination port)
must carry exactly one frame.

Examples:
  framestream replay pv.pcap                          # recorded pace, metadata to stdout
  framestream replay pv.pcap --speed 0 --mode async   # as fast as possible, producer mode
  framestream replay depth.pcap --port 3810 --modality depth --buffer-len 30`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := replayConfig(args[0], replayFlags)
		if err != nil {
			return err
		}
		d := daemon.NewWithConfig(cfg)
		if err := d.Start(); err != nil {
			d.Stop()
			return fmt.Errorf("failed to start replay: %w", err)
		}
		return d.Run()
	},
}

type replayOptions struct {
	name      string
	port      uint16
	speed     float64
	mode      string
	bufferLen int
	pose      bool
	modality  string
	logLevel  string
	reporter  string
	format    string
	output    string
}

var replayFlags replayOptions

func init() {
	f := replayCmd.Flags()
	f.StringVar(&replayFlags.name, "name", "replay", "stream name")
	f.Uint16Var(&replayFlags.port, "port", 0, "UDP destination port to replay (0 = all)")
	f.Float64Var(&replayFlags.speed, "speed", 1, "replay speed factor (0 = as fast as possible)")
	f.StringVar(&replayFlags.mode, "mode", "sync", "stream mode: sync|async")
	f.IntVar(&replayFlags.bufferLen, "buffer-len", config.DefaultBufferLen, "history capacity")
	f.BoolVar(&replayFlags.pose, "pose", false, "frames carry a 4x4 pose trailer")
	f.StringVar(&replayFlags.modality, "modality", "generic", "generic|vlc|depth|imu|pv")
	f.StringVar(&replayFlags.logLevel, "log-level", "info", "log level")
	f.StringVar(&replayFlags.reporter, "metadata", "console", "metadata reporter: none|console|file")
	f.StringVar(&replayFlags.format, "format", "json", "metadata format: json|yaml")
	f.StringVarP(&replayFlags.output, "output", "o", "", "metadata file path for --metadata file")
}

// replayConfig builds a single-stream configuration for a capture file.
func replayConfig(path string, o replayOptions) (*config.GlobalConfig, error) {
	cfg := config.Default()
	cfg.Log.Level = o.logLevel
	cfg.Metadata.Reporter = o.reporter
	cfg.Metadata.Format = o.format
	cfg.Metadata.Path = o.output
	cfg.Streams = []config.StreamConfig{{
		Name:      o.name,
		Replay:    config.ReplayConfig{File: path, Port: o.port, Speed: o.speed},
		Mode:      o.mode,
		BufferLen: o.bufferLen,
		Pose:      o.pose,
		Modality:  o.modality,
	}}
	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, err
	}
	return cfg, nil
}
