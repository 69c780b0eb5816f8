package pipeline

import (
	"time"

	"firestige.xyz/vrtbridge/internal/config"
)

// Builder provides a fluent interface for building packetizers.
// This is an alternative to using Config directly.
type Builder struct {
	config Config
	input  ChunkSource
	output FrameSink
}

// NewBuilder creates a new packetizer builder.
func NewBuilder() *Builder {
	return &Builder{
		config: Config{
			QueueSize:             10000,
			ThroughputGranularity: 100,
		},
	}
}

// FromConfig copies the packetizer section of the bridge configuration.
func (b *Builder) FromConfig(cfg config.PacketizerConfig) *Builder {
	b.config.Frequency = cfg.Frequency
	b.config.Bandwidth = cfg.Bandwidth
	b.config.SampleRate = cfg.SampleRate
	b.config.SampleCount = cfg.SampleCount
	b.config.ContextEmissionFrequency = cfg.ContextEmissionFrequency
	if cfg.QueueSize > 0 {
		b.config.QueueSize = cfg.QueueSize
	}
	if cfg.ThroughputGranularity > 0 {
		b.config.ThroughputGranularity = cfg.ThroughputGranularity
	}
	return b
}

// WithName sets the name used in logs and metric labels.
func (b *Builder) WithName(name string) *Builder {
	b.config.Name = name
	return b
}

// WithSignal sets the values advertised in context packets.
func (b *Builder) WithSignal(frequency, bandwidth uint32) *Builder {
	b.config.Frequency = frequency
	b.config.Bandwidth = bandwidth
	return b
}

// WithFraming sets the sample rate and pairs per data packet.
func (b *Builder) WithFraming(sampleRate uint32, sampleCount int) *Builder {
	b.config.SampleRate = sampleRate
	b.config.SampleCount = sampleCount
	return b
}

// WithContextFrequency sets the context emission rate in Hz.
func (b *Builder) WithContextFrequency(hz float64) *Builder {
	b.config.ContextEmissionFrequency = hz
	return b
}

// WithQueueSize sets the internal queue capacity.
func (b *Builder) WithQueueSize(size int) *Builder {
	b.config.QueueSize = size
	return b
}

// WithStart pins the timestamp of the first data packet.
func (b *Builder) WithStart(t time.Time) *Builder {
	b.config.Start = t
	return b
}

// WithInput sets the chunk source.
func (b *Builder) WithInput(in ChunkSource) *Builder {
	b.input = in
	return b
}

// WithOutput sets the frame sink.
func (b *Builder) WithOutput(out FrameSink) *Builder {
	b.output = out
	return b
}

// Build creates the packetizer.
func (b *Builder) Build() (*Packetizer, error) {
	return New(b.config, b.input, b.output)
}
