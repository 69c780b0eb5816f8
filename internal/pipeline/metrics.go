package pipeline

import (
	"sync/atomic"
)

// Metrics contains per-packetizer counters.
type Metrics struct {
	Name string

	Chunks       atomic.Uint64
	Pairs        atomic.Uint64
	Blocks       atomic.Uint64
	EncodeErrors atomic.Uint64
	DataSent     atomic.Uint64
	ContextSent  atomic.Uint64
	Dropped      atomic.Uint64
}

// NewMetrics creates a new metrics instance.
func NewMetrics(name string) *Metrics {
	return &Metrics{Name: name}
}

// Snapshot copies the counters.
func (m *Metrics) Snapshot() Stats {
	return Stats{
		Chunks:       m.Chunks.Load(),
		Pairs:        m.Pairs.Load(),
		Blocks:       m.Blocks.Load(),
		EncodeErrors: m.EncodeErrors.Load(),
		DataSent:     m.DataSent.Load(),
		ContextSent:  m.ContextSent.Load(),
		Dropped:      m.Dropped.Load(),
	}
}

// Reset resets all counters to zero.
func (m *Metrics) Reset() {
	m.Chunks.Store(0)
	m.Pairs.Store(0)
	m.Blocks.Store(0)
	m.EncodeErrors.Store(0)
	m.DataSent.Store(0)
	m.ContextSent.Store(0)
	m.Dropped.Store(0)
}

// Stats represents packetizer statistics.
type Stats struct {
	Chunks         uint64
	Pairs          uint64
	Blocks         uint64
	EncodeErrors   uint64
	DataSent       uint64
	ContextSent    uint64
	Dropped        uint64
	Throughput     float64 // bytes/s, last reported window
	InternalQueued int
}
