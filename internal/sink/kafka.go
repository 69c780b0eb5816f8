package sink

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"firestige.xyz/vrtbridge/internal/core"
	"firestige.xyz/vrtbridge/internal/log"
)

const KafkaName = "kafka"

const (
	defaultKafkaBatchSize    = 100
	defaultKafkaBatchTimeout = 10 * time.Millisecond
	defaultKafkaMaxAttempts  = 3
	defaultKafkaWriteTimeout = 10 * time.Second
	defaultKafkaKey          = "vrt"
)

func init() {
	Register(KafkaName, func(opts map[string]any) (Sink, error) {
		var o KafkaOptions
		if err := decode(KafkaName, opts, &o); err != nil {
			return nil, err
		}
		return NewKafka(o)
	})
}

type KafkaOptions struct {
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	Key          string        `mapstructure:"key"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	Compression  string        `mapstructure:"compression"` // none|gzip|snappy|lz4|zstd
	MaxAttempts  int           `mapstructure:"max_attempts"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// messageWriter is the part of kafka.Writer the sink uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka publishes one message per packet. Every message carries the same
// key, so the hash balancer keeps the stream on one partition and in order.
// The frame kind travels in the "vrt-kind" header.
type Kafka struct {
	opts        KafkaOptions
	compression kafka.Compression
	logger      log.Logger

	mu     sync.Mutex
	writer messageWriter
	closed bool

	published atomic.Uint64
	failed    atomic.Uint64
}

func NewKafka(opts KafkaOptions) (*Kafka, error) {
	if len(opts.Brokers) == 0 {
		return nil, fmt.Errorf("%w: kafka brokers are required", core.ErrConfigInvalid)
	}
	if opts.Topic == "" {
		return nil, fmt.Errorf("%w: kafka topic is required", core.ErrConfigInvalid)
	}
	compression, err := kafkaCompression(opts.Compression)
	if err != nil {
		return nil, err
	}
	if opts.Key == "" {
		opts.Key = defaultKafkaKey
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultKafkaBatchSize
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = defaultKafkaBatchTimeout
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultKafkaMaxAttempts
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultKafkaWriteTimeout
	}
	k := &Kafka{opts: opts, compression: compression}
	k.logger = log.GetLogger().WithField("output", k.String())
	return k, nil
}

func kafkaCompression(name string) (kafka.Compression, error) {
	switch name {
	case "", "none":
		return 0, nil
	case "gzip":
		return kafka.Gzip, nil
	case "snappy":
		return kafka.Snappy, nil
	case "lz4":
		return kafka.Lz4, nil
	case "zstd":
		return kafka.Zstd, nil
	default:
		return 0, fmt.Errorf("%w: kafka compression %q", core.ErrConfigInvalid, name)
	}
}

func (k *Kafka) String() string {
	return fmt.Sprintf("VRT Kafka [%s]", k.opts.Topic)
}

// Open creates the writer. kafka-go connects lazily, so broker outages
// surface on Write.
func (k *Kafka) Open(ctx context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.writer == nil {
		k.writer = &kafka.Writer{
			Addr:         kafka.TCP(k.opts.Brokers...),
			Topic:        k.opts.Topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    k.opts.BatchSize,
			BatchTimeout: k.opts.BatchTimeout,
			MaxAttempts:  k.opts.MaxAttempts,
			Compression:  k.compression,
			RequiredAcks: kafka.RequireOne,
		}
	}
	k.closed = false
	k.logger.WithField("brokers", k.opts.Brokers).Info("kafka writer ready")
	return nil
}

func (k *Kafka) Write(frame core.Frame) error {
	k.mu.Lock()
	w, closed := k.writer, k.closed
	k.mu.Unlock()
	if closed || w == nil {
		return fmt.Errorf("%s: %w", k, core.ErrSinkClosed)
	}

	msg := kafka.Message{
		Key:     []byte(k.opts.Key),
		Value:   frame.Bytes,
		Headers: []kafka.Header{{Key: "vrt-kind", Value: []byte(frame.Kind.String())}},
		Time:    time.Now(),
	}
	ctx, cancel := context.WithTimeout(context.Background(), k.opts.WriteTimeout)
	defer cancel()
	if err := w.WriteMessages(ctx, msg); err != nil {
		k.failed.Add(1)
		return fmt.Errorf("%s: publish: %w", k, err)
	}
	k.published.Add(1)
	return nil
}

func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.closed = true
	if k.writer == nil {
		return nil
	}
	err := k.writer.Close()
	k.writer = nil
	k.logger.WithFields(map[string]any{
		"published": k.published.Load(),
		"failed":    k.failed.Load(),
	}).Info("kafka writer closed")
	return err
}
