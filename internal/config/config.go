// Package config loads the bridge configuration.
package config

import (
	"fmt"
	"math"
	"strings"

	"github.com/spf13/viper"

	"firestige.xyz/vrtbridge/internal/core"
	"firestige.xyz/vrtbridge/internal/log"
)

// BridgeConfig is the root of the bridge configuration, found under the
// "vrt-bridge" key of the configuration file.
type BridgeConfig struct {
	Log        log.LoggerConfig `mapstructure:"log" yaml:"log"`
	Metrics    MetricsConfig    `mapstructure:"metrics" yaml:"metrics"`
	IQInput    IQInputConfig    `mapstructure:"iq_input" yaml:"iq_input"`
	Packetizer PacketizerConfig `mapstructure:"packetizer" yaml:"packetizer"`
	VRTOutput  VRTOutputConfig  `mapstructure:"vrt_output" yaml:"vrt_output"`
	Queues     QueuesConfig     `mapstructure:"queues" yaml:"queues"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Listen  string `mapstructure:"listen" yaml:"listen"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// IQInputConfig selects the sample source. Only the section named by Type
// is read; its keys are decoded by the source itself.
type IQInputConfig struct {
	Type     string         `mapstructure:"type" yaml:"type"` // endpoint | file
	Endpoint map[string]any `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	File     map[string]any `mapstructure:"file" yaml:"file,omitempty"`
}

// PacketizerConfig sets the signal description and framing.
type PacketizerConfig struct {
	Frequency                uint32  `mapstructure:"frequency" yaml:"frequency"`     // Hz
	Bandwidth                uint32  `mapstructure:"bandwidth" yaml:"bandwidth"`     // Hz
	SampleRate               uint32  `mapstructure:"sample_rate" yaml:"sample_rate"` // samples/s
	SampleCount              int     `mapstructure:"sample_count" yaml:"sample_count"`
	ContextEmissionFrequency float64 `mapstructure:"context_emission_frequency" yaml:"context_emission_frequency"` // Hz, <= 0 disables
	QueueSize                int     `mapstructure:"queue_size" yaml:"queue_size"`
	ThroughputGranularity    int     `mapstructure:"throughput_granularity" yaml:"throughput_granularity"`
}

// VRTOutputConfig selects the packet sink.
type VRTOutputConfig struct {
	Type    string         `mapstructure:"type" yaml:"type"` // udp | tcp | file | pcap | kafka
	Options map[string]any `mapstructure:"options" yaml:"options,omitempty"`
}

// QueuesConfig sizes the queues between the bridge stages.
type QueuesConfig struct {
	IQSize  int `mapstructure:"iq_size" yaml:"iq_size"`
	VRTSize int `mapstructure:"vrt_size" yaml:"vrt_size"`
}

type configRoot struct {
	Bridge BridgeConfig `mapstructure:"vrt-bridge"`
}

// Load reads the file at path, applies VRT_BRIDGE_* environment overrides
// and defaults, and validates the result.
func Load(path string) (*BridgeConfig, error) {
	v := viper.New()

	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// vrt-bridge.packetizer.sample_rate -> VRT_BRIDGE_PACKETIZER_SAMPLE_RATE
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Bridge

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("vrt-bridge.log.level", "info")
	v.SetDefault("vrt-bridge.log.pattern", log.DefaultPattern)
	v.SetDefault("vrt-bridge.log.time", log.DefaultTime)
	v.SetDefault("vrt-bridge.log.file.enabled", false)
	v.SetDefault("vrt-bridge.log.file.filename", "/var/log/vrt-bridge/vrt-bridge.log")
	v.SetDefault("vrt-bridge.log.file.max_size", 100)
	v.SetDefault("vrt-bridge.log.file.max_age", 30)
	v.SetDefault("vrt-bridge.log.file.max_backups", 5)
	v.SetDefault("vrt-bridge.log.file.compress", true)

	v.SetDefault("vrt-bridge.metrics.enabled", true)
	v.SetDefault("vrt-bridge.metrics.listen", ":9091")
	v.SetDefault("vrt-bridge.metrics.path", "/metrics")

	v.SetDefault("vrt-bridge.packetizer.context_emission_frequency", 1.0)
	v.SetDefault("vrt-bridge.packetizer.queue_size", 10000)
	v.SetDefault("vrt-bridge.packetizer.throughput_granularity", 100)

	v.SetDefault("vrt-bridge.vrt_output.type", "udp")

	v.SetDefault("vrt-bridge.queues.iq_size", 10000)
	v.SetDefault("vrt-bridge.queues.vrt_size", 10000)
}

// ValidateAndApplyDefaults checks cross-field constraints. Errors wrap
// core.ErrConfigInvalid.
func (cfg *BridgeConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("log level %q (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Pattern == "" {
		cfg.Log.Pattern = log.DefaultPattern
	}
	if cfg.Log.Time == "" {
		cfg.Log.Time = log.DefaultTime
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Filename == "" {
		return invalid("log.file.filename is required when log.file.enabled=true")
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	cfg.IQInput.Type = strings.ToLower(cfg.IQInput.Type)
	switch cfg.IQInput.Type {
	case "endpoint":
		if cfg.IQInput.Endpoint == nil {
			return invalid("iq_input.endpoint section is required for type endpoint")
		}
	case "file":
		if cfg.IQInput.File == nil {
			return invalid("iq_input.file section is required for type file")
		}
	case "":
		return invalid("iq_input.type is required")
	default:
		return fmt.Errorf("%w: %s", core.ErrUnsupportedInput, cfg.IQInput.Type)
	}

	p := &cfg.Packetizer
	if p.SampleRate == 0 {
		return invalid("packetizer.sample_rate must be positive")
	}
	if p.SampleCount <= 0 {
		return invalid("packetizer.sample_count must be positive")
	}
	// Three bytes per packed pair: only multiples of four fill whole words.
	if p.SampleCount%4 != 0 {
		return invalid("packetizer.sample_count %d is not a multiple of 4", p.SampleCount)
	}
	if words := 7 + p.SampleCount*3/4; words > math.MaxUint16 {
		return invalid("packetizer.sample_count %d exceeds the maximum packet size", p.SampleCount)
	}
	if p.QueueSize <= 0 {
		return invalid("packetizer.queue_size must be positive")
	}
	if p.ThroughputGranularity <= 0 {
		p.ThroughputGranularity = 100
	}

	cfg.VRTOutput.Type = strings.ToLower(cfg.VRTOutput.Type)
	switch cfg.VRTOutput.Type {
	case "udp", "tcp", "file", "pcap", "kafka":
	default:
		return fmt.Errorf("%w: %q", core.ErrUnsupportedOutput, cfg.VRTOutput.Type)
	}

	if cfg.Queues.IQSize <= 0 || cfg.Queues.VRTSize <= 0 {
		return invalid("queue sizes must be positive")
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{core.ErrConfigInvalid}, args...)...)
}
