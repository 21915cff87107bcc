// Package config handles global configuration loading using viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/framestream/internal/core"
)

// GlobalConfig represents the top-level configuration.
// Maps to the `framestream:` root key in YAML.
type GlobalConfig struct {
	Log      LogConfig      `mapstructure:"log"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Metadata MetadataConfig `mapstructure:"metadata"`
	Streams  []StreamConfig `mapstructure:"streams"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level     string           `mapstructure:"level"`   // trace / debug / info / warn / error
	Pattern   string           `mapstructure:"pattern"` // %time %level %field %msg %caller %func
	Time      string           `mapstructure:"time"`    // Go time layout
	Appenders []AppenderConfig `mapstructure:"appenders"`
}

// AppenderConfig configures one log output. Options are appender specific.
type AppenderConfig struct {
	Type    string         `mapstructure:"type"` // console | file
	Options map[string]any `mapstructure:"options"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Metadata side channel ───

// MetadataConfig selects where delivered-frame metadata records go.
type MetadataConfig struct {
	Reporter string      `mapstructure:"reporter"` // none | console | file | kafka
	Format   string      `mapstructure:"format"`   // json | yaml (console, file)
	Path     string      `mapstructure:"path"`     // file reporter target; %s is replaced by the stream name
	Kafka    KafkaConfig `mapstructure:"kafka"`
}

// KafkaConfig configures the kafka metadata reporter.
type KafkaConfig struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none | gzip | snappy | lz4 | zstd
}

// ─── Loading ───

// configRoot is the top-level wrapper matching the YAML structure `framestream: ...`.
type configRoot struct {
	Framestream GlobalConfig `mapstructure:"framestream"`
}

// Load loads configuration from file.
// Env vars use the FRAMESTREAM_ prefix (e.g. FRAMESTREAM_LOG_LEVEL).
func Load(path string) (*GlobalConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Framestream

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Default returns a configuration with every default applied and no streams.
func Default() *GlobalConfig {
	v := viper.New()
	setDefaults(v)
	var root configRoot
	_ = v.Unmarshal(&root)
	cfg := root.Framestream
	return &cfg
}

// setDefaults sets default values for configuration.
// All keys use the "framestream." prefix to match the YAML root wrapper.
func setDefaults(v *viper.Viper) {
	// Log defaults
	v.SetDefault("framestream.log.level", "info")
	v.SetDefault("framestream.log.pattern", "%time [%level] %msg %field\n")
	v.SetDefault("framestream.log.time", "2006-01-02 15:04:05.000")

	// Metrics defaults
	v.SetDefault("framestream.metrics.enabled", false)
	v.SetDefault("framestream.metrics.listen", ":9092")
	v.SetDefault("framestream.metrics.path", "/metrics")

	// Metadata defaults
	v.SetDefault("framestream.metadata.reporter", "none")
	v.SetDefault("framestream.metadata.format", "json")
	v.SetDefault("framestream.metadata.kafka.batch_timeout", "100ms")
	v.SetDefault("framestream.metadata.kafka.compression", "snappy")
}

// ValidateAndApplyDefaults validates configuration and applies per-stream defaults.
func (cfg *GlobalConfig) ValidateAndApplyDefaults() error {
	// ── Log validation ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Log.Level)] {
		return fmt.Errorf("%w: invalid log level: %s (must be trace/debug/info/warn/error)", core.ErrConfigInvalid, cfg.Log.Level)
	}

	// ── Metadata validation ──
	if err := cfg.Metadata.validate(); err != nil {
		return err
	}

	// ── Streams ──
	names := make(map[string]bool, len(cfg.Streams))
	for i := range cfg.Streams {
		s := &cfg.Streams[i]
		if err := s.ValidateAndApplyDefaults(); err != nil {
			return fmt.Errorf("streams[%d]: %w", i, err)
		}
		if names[s.Name] {
			return fmt.Errorf("%w: duplicate stream name %q", core.ErrConfigInvalid, s.Name)
		}
		names[s.Name] = true
	}
	for _, s := range cfg.Streams {
		if s.Reference == "" {
			continue
		}
		if s.Reference == s.Name {
			return fmt.Errorf("%w: stream %q references itself", core.ErrConfigInvalid, s.Name)
		}
		if !names[s.Reference] {
			return fmt.Errorf("%w: stream %q references unknown stream %q", core.ErrConfigInvalid, s.Name, s.Reference)
		}
	}
	return nil
}

// Stream returns the stream config with the given name.
func (cfg *GlobalConfig) Stream(name string) (StreamConfig, bool) {
	for _, s := range cfg.Streams {
		if s.Name == name {
			return s, true
		}
	}
	return StreamConfig{}, false
}

func (m *MetadataConfig) validate() error {
	switch m.Format {
	case "json", "yaml":
	default:
		return fmt.Errorf("%w: invalid metadata format: %s (must be json/yaml)", core.ErrConfigInvalid, m.Format)
	}
	switch m.Reporter {
	case "none", "console":
	case "file":
		if m.Path == "" {
			return fmt.Errorf("%w: metadata.path is required when metadata.reporter=file", core.ErrConfigInvalid)
		}
	case "kafka":
		if len(m.Kafka.Brokers) == 0 {
			return fmt.Errorf("%w: metadata.kafka.brokers is required when metadata.reporter=kafka", core.ErrConfigInvalid)
		}
		if m.Kafka.Topic == "" {
			return fmt.Errorf("%w: metadata.kafka.topic is required when metadata.reporter=kafka", core.ErrConfigInvalid)
		}
	default:
		return fmt.Errorf("%w: unsupported metadata.reporter: %s (must be none/console/file/kafka)", core.ErrConfigInvalid, m.Reporter)
	}
	return nil
}
