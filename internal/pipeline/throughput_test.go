package pipeline

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestThroughputMeter_ReportsEveryGranularity(t *testing.T) {
	gauge := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_throughput"})
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := NewThroughputMeter(4, gauge)
	m.now = clock.now

	m.Observe(1000)
	for i := 0; i < 3; i++ {
		clock.advance(10 * time.Millisecond)
		m.Observe(1000)
	}
	assert.Zero(t, m.Last(), "no report before granularity observations")
	assert.InDelta(t, 100000.0, m.Instant(), 1e-6)

	clock.advance(10 * time.Millisecond)
	m.Observe(1000)
	assert.InDelta(t, 100000.0, m.Last(), 1e-6)
	assert.InDelta(t, 100000.0, testutil.ToFloat64(gauge), 1e-6)

	for i := 0; i < 4; i++ {
		clock.advance(20 * time.Millisecond)
		m.Observe(1000)
	}
	assert.InDelta(t, 50000.0, m.Last(), 1e-6)
}

func TestThroughputMeter_IgnoresZeroElapsed(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	m := NewThroughputMeter(1, nil)
	m.now = clock.now

	m.Observe(10)
	m.Observe(10)
	assert.Zero(t, m.Last())
	assert.Zero(t, m.Instant())
}
