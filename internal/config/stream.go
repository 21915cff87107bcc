package config

import (
	"fmt"
	"time"

	"firestige.xyz/framestream/internal/core"
)

// StreamConfig describes one sensor stream session.
type StreamConfig struct {
	Name    string       `mapstructure:"name"`
	Address string       `mapstructure:"address"` // host:port of the device
	Replay  ReplayConfig `mapstructure:"replay"`  // alternative to Address

	Mode         string `mapstructure:"mode"`          // sync | async
	BufferLen    int    `mapstructure:"buffer_len"`    // history capacity
	SinkCapacity int    `mapstructure:"sink_capacity"` // async only; 0 = buffer_len

	Picker    string `mapstructure:"picker"`    // latest | nearest | buffered
	Reference string `mapstructure:"reference"` // stream whose delivered frames drive nearest/buffered

	TickInterval time.Duration `mapstructure:"tick_interval"`
	Pose         bool          `mapstructure:"pose"`
	Modality     string        `mapstructure:"modality"` // generic | vlc | depth | imu | pv
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	MaxPayload   uint32        `mapstructure:"max_payload"`
}

// ReplayConfig replays a pcap capture instead of dialing a device.
type ReplayConfig struct {
	File  string  `mapstructure:"file"`
	Port  uint16  `mapstructure:"port"`
	Speed float64 `mapstructure:"speed"`
}

const (
	DefaultBufferLen    = 60
	DefaultTickInterval = 16 * time.Millisecond
	DefaultDialTimeout  = 5 * time.Second
)

var validModalities = map[string]bool{
	"generic": true, "vlc": true, "depth": true, "imu": true, "pv": true,
}

// ValidateAndApplyDefaults validates one stream and fills its defaults.
func (s *StreamConfig) ValidateAndApplyDefaults() error {
	if s.Name == "" {
		return fmt.Errorf("%w: stream name is required", core.ErrConfigInvalid)
	}
	if (s.Address == "") == (s.Replay.File == "") {
		return fmt.Errorf("%w: stream %q needs exactly one of address or replay.file", core.ErrConfigInvalid, s.Name)
	}

	if s.Mode == "" {
		s.Mode = string(core.ModeSync)
	}
	switch core.Mode(s.Mode) {
	case core.ModeSync, core.ModeAsync:
	default:
		return fmt.Errorf("%w: stream %q: invalid mode %q (must be sync/async)", core.ErrConfigInvalid, s.Name, s.Mode)
	}

	if s.BufferLen == 0 {
		s.BufferLen = DefaultBufferLen
	}
	if s.BufferLen < 1 {
		return fmt.Errorf("%w: stream %q: buffer_len must be >= 1", core.ErrConfigInvalid, s.Name)
	}
	if s.SinkCapacity <= 0 || s.SinkCapacity > s.BufferLen {
		s.SinkCapacity = s.BufferLen
	}

	if s.Picker == "" {
		s.Picker = string(core.PolicyLatest)
	}
	switch core.Policy(s.Picker) {
	case core.PolicyLatest:
	case core.PolicyNearest, core.PolicyBuffered:
		if s.Reference == "" {
			return fmt.Errorf("%w: stream %q: picker %s requires a reference stream", core.ErrConfigInvalid, s.Name, s.Picker)
		}
	default:
		return fmt.Errorf("%w: stream %q: invalid picker %q (must be latest/nearest/buffered)", core.ErrConfigInvalid, s.Name, s.Picker)
	}

	if s.TickInterval <= 0 {
		s.TickInterval = DefaultTickInterval
	}
	if s.DialTimeout <= 0 {
		s.DialTimeout = DefaultDialTimeout
	}
	if s.Modality == "" {
		s.Modality = "generic"
	}
	if !validModalities[s.Modality] {
		return fmt.Errorf("%w: stream %q: unknown modality %q", core.ErrConfigInvalid, s.Name, s.Modality)
	}
	if s.Replay.File != "" && s.Replay.Speed < 0 {
		return fmt.Errorf("%w: stream %q: replay.speed must be >= 0", core.ErrConfigInvalid, s.Name)
	}
	return nil
}
