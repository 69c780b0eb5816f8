// Package bridge wires an I/Q source, the packetizer and a VRT sink into one
// running process.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"firestige.xyz/vrtbridge/internal/config"
	"firestige.xyz/vrtbridge/internal/core"
	"firestige.xyz/vrtbridge/internal/log"
	"firestige.xyz/vrtbridge/internal/metrics"
	"firestige.xyz/vrtbridge/internal/pipeline"
	"firestige.xyz/vrtbridge/internal/sink"
	"firestige.xyz/vrtbridge/internal/source"
)

const (
	iqQueueName  = "iq"
	vrtQueueName = "vrt"
)

// Bridge owns every stage of one conversion.
type Bridge struct {
	config     *config.BridgeConfig
	configPath string

	source     source.Source
	sink       sink.Sink
	iqQueue    *pipeline.Queue[core.Chunk]
	vrtQueue   *pipeline.Queue[core.Frame]
	packetizer *pipeline.Packetizer

	metricsServer   *metrics.Server // nil if metrics disabled
	shutdownTimeout time.Duration

	// logger is swapped by Reload while the stages log through it.
	logger   atomic.Pointer[log.Logger]
	reloadMu sync.Mutex
}

// Option customises a Bridge.
type Option func(*Bridge)

// WithSource replaces the source built from configuration.
func WithSource(src source.Source) Option {
	return func(b *Bridge) { b.source = src }
}

// WithSink replaces the sink built from configuration.
func WithSink(s sink.Sink) Option {
	return func(b *Bridge) { b.sink = s }
}

// WithConfigPath records where cfg came from so Reload can re-read it.
func WithConfigPath(path string) Option {
	return func(b *Bridge) { b.configPath = path }
}

// WithShutdownTimeout bounds how long the metrics server may take to stop.
func WithShutdownTimeout(d time.Duration) Option {
	return func(b *Bridge) { b.shutdownTimeout = d }
}

// New builds every stage from cfg. Nothing is opened yet.
func New(cfg *config.BridgeConfig, opts ...Option) (*Bridge, error) {
	b := &Bridge{
		config:          cfg,
		shutdownTimeout: 5 * time.Second,
	}
	b.setLogger(log.GetLogger().WithField("component", "bridge"))
	for _, opt := range opts {
		opt(b)
	}

	var err error
	if b.source == nil {
		if b.source, err = source.New(inputConfig(cfg)); err != nil {
			return nil, fmt.Errorf("failed to create iq input: %w", err)
		}
	}
	if b.sink == nil {
		if b.sink, err = sink.New(cfg.VRTOutput); err != nil {
			return nil, fmt.Errorf("failed to create vrt output: %w", err)
		}
	}

	b.iqQueue = pipeline.NewQueue[core.Chunk](iqQueueName, cfg.Queues.IQSize)
	b.vrtQueue = pipeline.NewQueue[core.Frame](vrtQueueName, cfg.Queues.VRTSize)

	b.packetizer, err = pipeline.NewBuilder().
		FromConfig(cfg.Packetizer).
		WithName("packetizer").
		WithInput(b.iqQueue).
		WithOutput(b.vrtQueue).
		Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create packetizer: %w", err)
	}

	if cfg.Metrics.Enabled {
		b.metricsServer = metrics.NewServer(cfg.Metrics.Listen, cfg.Metrics.Path)
	}
	return b, nil
}

// inputConfig fills in the file chunk size from the packetizer when the file
// section leaves it out.
func inputConfig(cfg *config.BridgeConfig) config.IQInputConfig {
	in := cfg.IQInput
	if in.Type != string(source.KindFile) {
		return in
	}
	if _, ok := in.File["sample_count"]; ok {
		return in
	}
	file := make(map[string]any, len(in.File)+1)
	for k, v := range in.File {
		file[k] = v
	}
	file["sample_count"] = cfg.Packetizer.SampleCount
	in.File = file
	return in
}

// Run opens the source and sink, runs all stages and releases everything on
// return. It returns nil when ctx is cancelled or a finite source has been
// fully converted and written.
func (b *Bridge) Run(ctx context.Context) error {
	b.getLogger().WithFields(map[string]interface{}{
		"input":  b.source.String(),
		"output": b.sink.String(),
	}).Info("starting vrt bridge")

	if b.metricsServer != nil {
		if err := b.metricsServer.Start(ctx); err != nil {
			return err
		}
		defer b.stopMetrics()
	}

	if err := b.source.Open(ctx); err != nil {
		_ = b.source.Close()
		return fmt.Errorf("failed to open %s: %w", b.source, err)
	}
	defer b.closeQuietly("input", b.source.Close)

	if err := b.sink.Open(ctx); err != nil {
		_ = b.sink.Close()
		return fmt.Errorf("failed to open %s: %w", b.sink, err)
	}
	defer b.closeQuietly("output", b.sink.Close)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer b.iqQueue.Close()
		err := b.source.Run(gctx, b.iqQueue)
		if errors.Is(err, core.ErrSourceClosed) {
			b.getLogger().Info("input exhausted, draining")
			return nil
		}
		return err
	})
	g.Go(func() error {
		defer b.vrtQueue.Close()
		return b.packetizer.Run(gctx)
	})
	g.Go(func() error {
		return b.drain(gctx)
	})
	err := g.Wait()

	b.logStats()
	if err != nil {
		return err
	}
	b.getLogger().Info("vrt bridge stopped")
	return nil
}

// drain writes queued packets to the sink. A failed write is counted and
// logged; the stream continues with the next packet.
func (b *Bridge) drain(ctx context.Context) error {
	failures := metrics.SinkErrorsTotal.WithLabelValues(b.config.VRTOutput.Type)
	var lastErr string
	for {
		frame, err := b.vrtQueue.Pop(ctx)
		if err != nil {
			if errors.Is(err, pipeline.ErrQueueClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := b.sink.Write(frame); err != nil {
			failures.Inc()
			if errors.Is(err, core.ErrSinkClosed) {
				return err
			}
			// Only log when the failure changes, a dead receiver fails every write.
			if msg := err.Error(); msg != lastErr {
				b.getLogger().WithError(err).WithField("kind", frame.Kind.String()).Warn("failed to write packet")
				lastErr = msg
			}
			continue
		}
		lastErr = ""
	}
}

func (b *Bridge) stopMetrics() {
	ctx, cancel := context.WithTimeout(context.Background(), b.shutdownTimeout)
	defer cancel()
	if err := b.metricsServer.Stop(ctx); err != nil {
		b.getLogger().WithError(err).Error("error stopping metrics server")
	}
}

func (b *Bridge) closeQuietly(what string, fn func() error) {
	if err := fn(); err != nil {
		b.getLogger().WithError(err).Warnf("error closing %s", what)
	}
}

func (b *Bridge) logStats() {
	s := b.packetizer.Stats()
	b.getLogger().WithFields(map[string]interface{}{
		"pairs":      s.Pairs,
		"blocks":     s.Blocks,
		"data_sent":  s.DataSent,
		"context":    s.ContextSent,
		"dropped":    s.Dropped + b.iqQueue.Drops() + b.vrtQueue.Drops(),
		"throughput": fmt.Sprintf("%.1f KB/s", s.Throughput/1024),
	}).Info("bridge statistics")
}

// Stats returns the packetizer counters.
func (b *Bridge) Stats() pipeline.Stats {
	return b.packetizer.Stats()
}

// MetricsAddr returns the metrics listen address, or "" when disabled.
func (b *Bridge) MetricsAddr() string {
	if b.metricsServer == nil {
		return ""
	}
	return b.metricsServer.Addr()
}

func (b *Bridge) getLogger() log.Logger {
	return *b.logger.Load()
}

func (b *Bridge) setLogger(l log.Logger) {
	b.logger.Store(&l)
}

// Reload re-reads the configuration file. Only the log section is applied
// to a running bridge; other changes are reported and need a restart.
func (b *Bridge) Reload() error {
	if b.configPath == "" {
		return errors.New("bridge was not started from a configuration file")
	}
	b.reloadMu.Lock()
	defer b.reloadMu.Unlock()
	b.getLogger().WithField("path", b.configPath).Info("reloading configuration")

	next, err := config.Load(b.configPath)
	if err != nil {
		return fmt.Errorf("failed to load new config: %w", err)
	}

	applied := []string{}
	if !reflect.DeepEqual(next.Log, b.config.Log) {
		if err := log.Init(&next.Log); err != nil {
			return fmt.Errorf("failed to reinitialize logging: %w", err)
		}
		b.setLogger(log.GetLogger().WithField("component", "bridge"))
		applied = append(applied, "log")
	}

	restart := []string{}
	if !reflect.DeepEqual(next.IQInput, b.config.IQInput) {
		restart = append(restart, "iq_input")
	}
	if next.Packetizer != b.config.Packetizer {
		restart = append(restart, "packetizer")
	}
	if !reflect.DeepEqual(next.VRTOutput, b.config.VRTOutput) {
		restart = append(restart, "vrt_output")
	}
	if next.Metrics != b.config.Metrics {
		restart = append(restart, "metrics")
	}
	if next.Queues != b.config.Queues {
		restart = append(restart, "queues")
	}

	b.config.Log = next.Log
	b.getLogger().WithFields(map[string]interface{}{
		"applied":          applied,
		"requires_restart": restart,
	}).Info("configuration reloaded")
	return nil
}

// HandleSignals cancels on SIGINT or SIGTERM and reloads on SIGHUP. It
// returns when ctx ends.
func (b *Bridge) HandleSignals(ctx context.Context, cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)
	defer signal.Stop(sigs)

	for {
		select {
		case sig := <-sigs:
			switch sig {
			case syscall.SIGHUP:
				if err := b.Reload(); err != nil {
					b.getLogger().WithError(err).Error("failed to reload config")
				}
			default:
				b.getLogger().WithField("signal", sig.String()).Info("received shutdown signal")
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
