// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// IQPairsTotal counts I/Q pairs delivered by the input source
	IQPairsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrt_bridge_iq_pairs_total",
			Help: "Total number of I/Q pairs received from the input",
		},
		[]string{"input"},
	)

	// PacketsTotal counts VRT packets handed to the sink
	PacketsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrt_bridge_packets_total",
			Help: "Total number of VRT packets emitted",
		},
		[]string{"kind"},
	)

	// BytesTotal counts encoded VRT bytes handed to the sink
	BytesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrt_bridge_bytes_total",
			Help: "Total number of VRT bytes emitted",
		},
		[]string{"kind"},
	)

	// QueueDropsTotal counts items dropped because a queue was full
	QueueDropsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrt_bridge_queue_drops_total",
			Help: "Total number of items dropped on a full queue",
		},
		[]string{"queue"},
	)

	// QueueDepth tracks the number of items waiting in a queue
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vrt_bridge_queue_depth",
			Help: "Number of items currently buffered in a queue",
		},
		[]string{"queue"},
	)

	// ThroughputBytesPerSecond is the latest data packet throughput estimate
	ThroughputBytesPerSecond = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vrt_bridge_throughput_bytes_per_second",
			Help: "Most recent data packet throughput estimate",
		},
		[]string{"pipeline"},
	)

	// EncodeErrorsTotal counts sample blocks that failed to encode
	EncodeErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vrt_bridge_encode_errors_total",
			Help: "Total number of sample blocks skipped because encoding failed",
		},
	)

	// SinkErrorsTotal counts failed writes by sink type
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vrt_bridge_sink_errors_total",
			Help: "Total number of failed VRT output writes",
		},
		[]string{"sink"},
	)

	// SendIntervalSeconds measures the spacing between data packet sends
	SendIntervalSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vrt_bridge_send_interval_seconds",
			Help:    "Time between consecutive data packet sends",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16), // 100µs to ~3s
		},
	)
)
