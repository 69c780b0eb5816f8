package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"firestige.xyz/vrtbridge/internal/core"
	"firestige.xyz/vrtbridge/internal/log"
	"firestige.xyz/vrtbridge/internal/metrics"
	"firestige.xyz/vrtbridge/internal/pipeline"
	"firestige.xyz/vrtbridge/pkg/iq"
)

// FileOptions configures a recorded input.
type FileOptions struct {
	FilePath    string  `mapstructure:"file_path"`
	Format      string  `mapstructure:"format"`
	StartOffset float64 `mapstructure:"start_offset"` // seconds
	Duration    float64 `mapstructure:"duration"`     // seconds, 0 reads to the end
	SampleCount int     `mapstructure:"sample_count"` // pairs per chunk
	Loop        *bool   `mapstructure:"loop"`
	Pace        *bool   `mapstructure:"pace"`
}

const readFrames = 4096

// File replays a stereo WAV recording, left channel as I and right as Q.
type File struct {
	opts   FileOptions
	loop   bool
	pace   bool
	logger log.Logger
	pairs  interface{ Add(float64) }

	samples    []iq.Pair
	sampleRate uint32
}

// NewFile validates opts. Only the wav format is accepted.
func NewFile(opts FileOptions) (*File, error) {
	if opts.FilePath == "" {
		return nil, fmt.Errorf("%w: file_path is required", core.ErrConfigInvalid)
	}
	opts.Format = strings.ToLower(opts.Format)
	if opts.Format == "" {
		opts.Format = "wav"
	}
	if opts.Format != "wav" {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedFormat, opts.Format)
	}
	if opts.SampleCount <= 0 {
		return nil, fmt.Errorf("%w: file sample_count must be positive", core.ErrConfigInvalid)
	}
	if opts.StartOffset < 0 || opts.Duration < 0 {
		return nil, fmt.Errorf("%w: start_offset and duration must not be negative", core.ErrConfigInvalid)
	}

	f := &File{
		opts:  opts,
		loop:  opts.Loop == nil || *opts.Loop,
		pace:  opts.Pace == nil || *opts.Pace,
		pairs: metrics.IQPairsTotal.WithLabelValues(string(KindFile)),
	}
	f.logger = log.GetLogger().WithField("input", f.String())
	return f, nil
}

func (f *File) Kind() Kind { return KindFile }

func (f *File) String() string {
	return fmt.Sprintf("I/Q File [%s]", f.opts.FilePath)
}

// SampleRate returns the recording's rate once opened.
func (f *File) SampleRate() uint32 { return f.sampleRate }

// Samples returns the selected window of the recording once opened.
func (f *File) Samples() []iq.Pair { return f.samples }

// Open reads the selected window of the recording into memory.
func (f *File) Open(ctx context.Context) error {
	fh, err := os.Open(f.opts.FilePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", f.opts.FilePath, err)
	}
	defer fh.Close()

	if !wav.NewDecoder(fh).IsValidFile() {
		return fmt.Errorf("%w: %s is not a valid wav file", core.ErrUnsupportedFormat, f.opts.FilePath)
	}
	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind %s: %w", f.opts.FilePath, err)
	}
	dec := wav.NewDecoder(fh)
	if err := dec.FwdToPCM(); err != nil {
		return fmt.Errorf("read %s: %w", f.opts.FilePath, err)
	}
	if dec.NumChans != 2 {
		return fmt.Errorf("%w: need 2 channels for I/Q, %s has %d", core.ErrUnsupportedFormat, f.opts.FilePath, dec.NumChans)
	}
	if dec.SampleRate == 0 {
		return fmt.Errorf("%w: %s reports a zero sample rate", core.ErrUnsupportedFormat, f.opts.FilePath)
	}

	rate := float64(dec.SampleRate)
	skip := int(f.opts.StartOffset * rate)
	limit := -1
	if f.opts.Duration > 0 {
		limit = int(f.opts.Duration * rate)
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{NumChannels: 2, SampleRate: int(dec.SampleRate)},
		Data:   make([]int, readFrames*2),
	}
	var samples []iq.Pair
	frame := 0
	for limit < 0 || len(samples) < limit {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := dec.PCMBuffer(buf)
		eof := errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
		if err != nil && !eof {
			return fmt.Errorf("read %s: %w", f.opts.FilePath, err)
		}
		for i := 0; i+1 < n; i += 2 {
			if frame >= skip && (limit < 0 || len(samples) < limit) {
				samples = append(samples, iq.Pair{I: int16(buf.Data[i]), Q: int16(buf.Data[i+1])})
			}
			frame++
		}
		if n == 0 || eof {
			break
		}
	}
	if len(samples) == 0 {
		return fmt.Errorf("%w: %s has no samples in the selected window", core.ErrConfigInvalid, f.opts.FilePath)
	}

	f.samples = samples
	f.sampleRate = dec.SampleRate
	f.logger.Infof("loaded %d pairs at %d Hz (%d-bit)", len(samples), dec.SampleRate, dec.BitDepth)
	return nil
}

// Run delivers the recording in chunks of sample_count pairs, the last one
// possibly shorter. Chunks wait for queue space. With loop disabled Run
// returns ErrSourceClosed after one pass.
func (f *File) Run(ctx context.Context, out ChunkQueue) error {
	if f.samples == nil {
		return fmt.Errorf("%s: not open", f)
	}

	var limiter *pipeline.RateLimiter
	if f.pace {
		limiter = pipeline.NewRateLimiter(pipeline.IntervalFor(f.opts.SampleCount, f.sampleRate))
	}

	for pass := 1; ; pass++ {
		for off := 0; off < len(f.samples); off += f.opts.SampleCount {
			end := min(off+f.opts.SampleCount, len(f.samples))
			chunk := core.Chunk(f.samples[off:end:end])

			var err error
			if limiter != nil {
				err = limiter.Do(ctx, func() error { return out.Push(ctx, chunk) })
			} else {
				err = out.Push(ctx, chunk)
			}
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return err
			}
			f.pairs.Add(float64(len(chunk)))
		}
		if !f.loop {
			f.logger.Info("replay finished")
			return core.ErrSourceClosed
		}
		f.logger.Debugf("replay pass %d complete, rewinding", pass)
	}
}

// Close drops the loaded samples.
func (f *File) Close() error {
	f.samples = nil
	return nil
}

// Duration returns the length of the loaded window.
func (f *File) Duration() time.Duration {
	if f.sampleRate == 0 {
		return 0
	}
	return time.Duration(len(f.samples)) * time.Second / time.Duration(f.sampleRate)
}
