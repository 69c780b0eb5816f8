package pipeline

import (
	"math"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/vrtbridge/internal/log"
)

// ThroughputMeter estimates output throughput. It belongs to a single stage
// and is not safe for concurrent Observe calls; Last may be read from any
// goroutine.
type ThroughputMeter struct {
	granularity int
	gauge       prometheus.Gauge
	logger      log.Logger
	now         func() time.Time

	prev        time.Time
	windowStart time.Time
	windowBytes int
	index       int

	instant atomic.Uint64 // float64 bits, bytes/s
	last    atomic.Uint64 // float64 bits, bytes/s
}

// NewThroughputMeter reports every granularity observations.
func NewThroughputMeter(granularity int, gauge prometheus.Gauge) *ThroughputMeter {
	if granularity <= 0 {
		granularity = 100
	}
	return &ThroughputMeter{
		granularity: granularity,
		gauge:       gauge,
		logger:      log.GetLogger(),
		now:         time.Now,
	}
}

// Observe records one unit of size bytes.
func (m *ThroughputMeter) Observe(size int) {
	now := m.now()
	if m.prev.IsZero() {
		m.prev, m.windowStart = now, now
		return
	}

	if elapsed := now.Sub(m.prev).Seconds(); elapsed > 0 {
		m.instant.Store(math.Float64bits(float64(size) / elapsed))
	}
	m.prev = now
	m.windowBytes += size
	m.index++

	if m.index < m.granularity {
		return
	}

	if elapsed := now.Sub(m.windowStart).Seconds(); elapsed > 0 {
		rate := float64(m.windowBytes) / elapsed
		m.last.Store(math.Float64bits(rate))
		if m.gauge != nil {
			m.gauge.Set(rate)
		}
		m.logger.Infof("Throughput: %d KB/s", int(rate/1000))
	}
	m.index, m.windowBytes, m.windowStart = 0, 0, now
}

// Instant returns the throughput between the two latest observations.
func (m *ThroughputMeter) Instant() float64 {
	return math.Float64frombits(m.instant.Load())
}

// Last returns the most recently reported window estimate in bytes/s.
func (m *ThroughputMeter) Last() float64 {
	return math.Float64frombits(m.last.Load())
}
