package monitor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"synapse/internal/logger"
)

func newTestMonitor(capacity int) *Monitor {
	return New(Config{RingCapacity: capacity}, logger.NopLogger())
}

func TestSnapshotCountsMessagesAndErrors(t *testing.T) {
	m := newTestMonitor(100)

	for i := 0; i < 20; i++ {
		m.RecordMessage(10)
	}
	for i := 0; i < 4; i++ {
		m.RecordError()
	}

	snap := m.Snapshot()
	assert.Equal(t, uint64(20), snap.MessageCount)
	assert.Equal(t, uint64(4), snap.ErrorCount)
	assert.Greater(t, snap.AvgLatencyMs, 0.0)
	assert.Greater(t, snap.MessagesPerSecond, 0.0)
	assert.False(t, snap.WindowStart.IsZero())
}

func TestSnapshotEmpty(t *testing.T) {
	m := newTestMonitor(100)

	snap := m.Snapshot()
	assert.Equal(t, uint64(0), snap.MessageCount)
	assert.Equal(t, uint64(0), snap.ErrorCount)
	assert.Equal(t, 0.0, snap.AvgLatencyMs)
	assert.Equal(t, 0.0, snap.P95LatencyMs)
}

func TestSnapshotAverage(t *testing.T) {
	m := newTestMonitor(100)

	for _, latency := range []float64{10, 20, 30} {
		m.RecordMessage(latency)
	}

	snap := m.Snapshot()
	assert.InDelta(t, 20.0, snap.AvgLatencyMs, 0.001)
}

func TestSnapshotP95(t *testing.T) {
	m := newTestMonitor(200)

	// 1..100 ms: p95 should land on the 95th value
	for i := 1; i <= 100; i++ {
		m.RecordMessage(float64(i))
	}

	snap := m.Snapshot()
	assert.InDelta(t, 95.0, snap.P95LatencyMs, 0.001)
}

func TestSnapshotSingleSample(t *testing.T) {
	m := newTestMonitor(100)
	m.RecordMessage(42)

	snap := m.Snapshot()
	assert.InDelta(t, 42.0, snap.AvgLatencyMs, 0.001)
	assert.InDelta(t, 42.0, snap.P95LatencyMs, 0.001)
}

func TestRingEvictsOldestSamples(t *testing.T) {
	m := newTestMonitor(10)

	// ten slow samples, then ten fast ones push them all out
	for i := 0; i < 10; i++ {
		m.RecordMessage(1000)
	}
	for i := 0; i < 10; i++ {
		m.RecordMessage(1)
	}

	snap := m.Snapshot()
	assert.InDelta(t, 1.0, snap.AvgLatencyMs, 0.001, "window must only hold the recent samples")
	assert.Equal(t, uint64(20), snap.MessageCount, "counters are cumulative, not windowed")
}

func TestConcurrentRecording(t *testing.T) {
	m := newTestMonitor(1000)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				m.RecordMessage(float64(j))
				m.RecordError()
			}
		}()
	}
	wg.Wait()

	snap := m.Snapshot()
	assert.Equal(t, uint64(1000), snap.MessageCount)
	assert.Equal(t, uint64(1000), snap.ErrorCount)
}

func TestStartStopIdempotent(t *testing.T) {
	m := newTestMonitor(100)

	m.Start(10 * time.Millisecond)
	m.Start(10 * time.Millisecond) // second start is a no-op
	time.Sleep(25 * time.Millisecond)

	m.Stop()
	m.Stop() // second stop is a no-op

	// counters survive the sampler
	m.RecordMessage(5)
	assert.Equal(t, uint64(1), m.Snapshot().MessageCount)
}

func TestRingSnapshotOrder(t *testing.T) {
	r := newLatencyRing(3)
	r.push(1)
	r.push(2)
	r.push(3)
	r.push(4)

	assert.Equal(t, []float64{2, 3, 4}, r.snapshot())
}

func TestRingPartialFill(t *testing.T) {
	r := newLatencyRing(5)
	r.push(7)
	r.push(8)

	assert.Equal(t, []float64{7, 8}, r.snapshot())
}
