// Package pipeline turns a stream of I/Q chunks into rate-limited VRT data
// packets interleaved with periodic context packets.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"firestige.xyz/vrtbridge/internal/core"
	"firestige.xyz/vrtbridge/internal/log"
	"firestige.xyz/vrtbridge/internal/metrics"
	"firestige.xyz/vrtbridge/pkg/iq"
	"firestige.xyz/vrtbridge/pkg/vrt"
)

// Fixed identification of the data packets.
const (
	DataOUI       = 0x7C386C
	DataInfoClass = 22065
	DataStreamID  = 0
)

// ChunkSource yields sample chunks. Pop returns ErrQueueClosed at end of
// stream.
type ChunkSource interface {
	Pop(ctx context.Context) (core.Chunk, error)
}

// FrameSink accepts encoded packets without blocking.
type FrameSink interface {
	TryPush(frame core.Frame) bool
}

// Config contains packetizer configuration.
type Config struct {
	Name                     string
	Frequency                uint32 // Hz
	Bandwidth                uint32 // Hz
	SampleRate               uint32 // samples/s
	SampleCount              int    // pairs per data packet
	ContextEmissionFrequency float64
	QueueSize                int // internal queue between packetize and output stages
	ThroughputGranularity    int
	Start                    time.Time // timestamp of block 0; zero means the time Run starts
}

// Packetizer runs three stages. The packetize stage reframes chunks into
// blocks and encodes data packets into an internal queue. The output stage
// forwards them at the nominal sample rate. The context stage emits a
// context packet every 1/ContextEmissionFrequency seconds.
type Packetizer struct {
	cfg      Config
	input    ChunkSource
	output   FrameSink
	internal *Queue[[]byte]
	acc      *iq.Accumulator
	limiter  *RateLimiter
	meter    *ThroughputMeter
	metrics  *Metrics
	logger   log.Logger
	now      func() time.Time
	step     decimal.Decimal // seconds per block
}

// New validates cfg and creates a packetizer.
func New(cfg Config, input ChunkSource, output FrameSink) (*Packetizer, error) {
	if cfg.SampleRate == 0 {
		return nil, fmt.Errorf("%w: sample rate must be positive", core.ErrConfigInvalid)
	}
	if cfg.SampleCount <= 0 || cfg.SampleCount%4 != 0 {
		return nil, fmt.Errorf("%w: sample count %d must be a positive multiple of 4", core.ErrConfigInvalid, cfg.SampleCount)
	}
	if input == nil || output == nil {
		return nil, fmt.Errorf("%w: packetizer needs an input and an output", core.ErrConfigInvalid)
	}
	if cfg.Name == "" {
		cfg.Name = "packetizer"
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 10000
	}

	acc, err := iq.NewAccumulator(cfg.SampleCount)
	if err != nil {
		return nil, err
	}

	return &Packetizer{
		cfg:      cfg,
		input:    input,
		output:   output,
		internal: NewQueue[[]byte]("internal_queue", cfg.QueueSize),
		acc:      acc,
		limiter:  NewRateLimiter(IntervalFor(cfg.SampleCount, cfg.SampleRate)),
		meter:    NewThroughputMeter(cfg.ThroughputGranularity, metrics.ThroughputBytesPerSecond.WithLabelValues(cfg.Name)),
		metrics:  NewMetrics(cfg.Name),
		logger:   log.GetLogger().WithField("pipeline", cfg.Name),
		now:      time.Now,
		step:     decimal.NewFromInt(int64(cfg.SampleCount)).Div(decimal.NewFromInt(int64(cfg.SampleRate))),
	}, nil
}

// Run starts all stages and blocks until ctx is cancelled or the input is
// exhausted and every queued data packet has been forwarded.
func (p *Packetizer) Run(ctx context.Context) error {
	start := p.cfg.Start
	if start.IsZero() {
		start = p.now()
	}

	p.logger.WithFields(map[string]interface{}{
		"sample_rate":  p.cfg.SampleRate,
		"sample_count": p.cfg.SampleCount,
		"interval":     p.limiter.Interval(),
	}).Info("packetizer starting")

	ctxStage, stopContext := context.WithCancel(ctx)
	defer stopContext()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer p.internal.Close()
		p.packetize(ctx, vrt.TimestampFromTime(start))
	}()
	go func() {
		defer wg.Done()
		defer stopContext()
		p.forward(ctx)
	}()
	go func() {
		defer wg.Done()
		p.emitContext(ctxStage)
	}()
	wg.Wait()

	p.logger.WithFields(map[string]interface{}{
		"blocks":  p.metrics.Blocks.Load(),
		"data":    p.metrics.DataSent.Load(),
		"context": p.metrics.ContextSent.Load(),
	}).Info("packetizer stopped")
	return nil
}

// packetize consumes chunks until the input closes or ctx ends.
func (p *Packetizer) packetize(ctx context.Context, start vrt.Timestamp) {
	var index int64
	for {
		chunk, err := p.input.Pop(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				if n := p.acc.Pending(); n > 0 {
					p.logger.Debugf("input closed with %d pairs short of a block", n)
				}
			}
			return
		}
		p.metrics.Chunks.Add(1)
		p.metrics.Pairs.Add(uint64(len(chunk)))

		for _, block := range p.acc.Push(chunk) {
			buf, err := p.encodeBlock(start, index, block)
			index++
			if err != nil {
				p.metrics.EncodeErrors.Add(1)
				metrics.EncodeErrorsTotal.Inc()
				p.logger.WithError(err).Error("failed to encode data packet, skipping block")
				continue
			}
			p.metrics.Blocks.Add(1)
			if !p.internal.TryPush(buf) {
				p.metrics.Dropped.Add(1)
			}
		}
	}
}

// encodeBlock frames block number index as a data packet.
func (p *Packetizer) encodeBlock(start vrt.Timestamp, index int64, block []iq.Pair) ([]byte, error) {
	count := uint8(index % 16)
	class, err := vrt.NewClassID(DataOUI, DataInfoClass, uint16(count))
	if err != nil {
		return nil, err
	}
	ts := start.Add(p.step.Mul(decimal.NewFromInt(index)))
	packet := &vrt.Packet{
		Type:      vrt.IFDataWithID,
		TSI:       vrt.TSIOther,
		TSF:       vrt.TSFReal,
		Count:     count,
		StreamID:  DataStreamID,
		Timestamp: &ts,
		ClassID:   class,
		Data:      iq.Pack12(block),
	}
	return packet.Encode()
}

// forward moves data packets to the output at the nominal sample rate.
func (p *Packetizer) forward(ctx context.Context) {
	dataSize := p.cfg.SampleCount * 2 * 12 / 8
	var lastSend time.Time
	for {
		buf, err := p.internal.Pop(ctx)
		if err != nil {
			return
		}

		err = p.limiter.Do(ctx, func() error {
			if !p.output.TryPush(core.Frame{Kind: core.FrameData, Bytes: buf}) {
				p.metrics.Dropped.Add(1)
				return nil
			}
			p.metrics.DataSent.Add(1)
			metrics.PacketsTotal.WithLabelValues(core.FrameData.String()).Inc()
			metrics.BytesTotal.WithLabelValues(core.FrameData.String()).Add(float64(len(buf)))
			return nil
		})
		if err != nil {
			return
		}

		now := time.Now()
		if !lastSend.IsZero() {
			metrics.SendIntervalSeconds.Observe(now.Sub(lastSend).Seconds())
		}
		lastSend = now
		p.meter.Observe(dataSize)
	}
}

// emitContext sends a context packet immediately and then once per period.
// A non-positive frequency disables the stage.
func (p *Packetizer) emitContext(ctx context.Context) {
	if p.cfg.ContextEmissionFrequency <= 0 {
		return
	}
	period := time.Duration(float64(time.Second) / p.cfg.ContextEmissionFrequency)
	limiter := NewRateLimiter(period)

	for ctx.Err() == nil {
		err := limiter.Do(ctx, func() error {
			buf, err := NewContextPacket(p.cfg.Bandwidth, p.cfg.Frequency, p.cfg.SampleRate, p.now())
			if err != nil {
				p.metrics.EncodeErrors.Add(1)
				p.logger.WithError(err).Error("failed to build context packet")
				return nil
			}
			if p.output.TryPush(core.Frame{Kind: core.FrameContext, Bytes: buf}) {
				p.metrics.ContextSent.Add(1)
				metrics.PacketsTotal.WithLabelValues(core.FrameContext.String()).Inc()
				metrics.BytesTotal.WithLabelValues(core.FrameContext.String()).Add(float64(len(buf)))
			} else {
				p.metrics.Dropped.Add(1)
			}
			return nil
		})
		if err != nil {
			return
		}
	}
}

// Stats returns packetizer statistics.
func (p *Packetizer) Stats() Stats {
	s := p.metrics.Snapshot()
	s.Throughput = p.meter.Last()
	s.InternalQueued = p.internal.Len()
	return s
}
