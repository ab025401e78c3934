package monitor

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"synapse/internal/logger"
	"synapse/pkg/metrics"
)

const DefaultRingCapacity = 1000

type Config struct {
	RingCapacity int
}

// Snapshot is a point-in-time view of the monitor's counters and the
// latency window.
type Snapshot struct {
	MessageCount      uint64    `json:"message_count"`
	ErrorCount        uint64    `json:"error_count"`
	AvgLatencyMs      float64   `json:"avg_latency_ms"`
	P95LatencyMs      float64   `json:"p95_latency_ms"`
	MessagesPerSecond float64   `json:"messages_per_second"`
	WindowStart       time.Time `json:"window_start"`
}

// Monitor accumulates publish outcomes from all publisher paths.
// RecordMessage and RecordError are O(1) and safe for concurrent use;
// the background sampler only reads.
type Monitor struct {
	messageCount atomic.Uint64
	errorCount   atomic.Uint64
	ring         *latencyRing
	start        time.Time
	log          logger.Logger

	mu   sync.Mutex
	done chan struct{}
}

func New(cfg Config, log logger.Logger) *Monitor {
	capacity := cfg.RingCapacity
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Monitor{
		ring:  newLatencyRing(capacity),
		start: time.Now(),
		log:   log,
	}
}

func (m *Monitor) RecordMessage(latencyMs float64) {
	m.messageCount.Add(1)
	m.ring.push(latencyMs)
}

func (m *Monitor) RecordError() {
	m.errorCount.Add(1)
}

func (m *Monitor) Snapshot() Snapshot {
	samples := m.ring.snapshot()

	snap := Snapshot{
		MessageCount: m.messageCount.Load(),
		ErrorCount:   m.errorCount.Load(),
		WindowStart:  m.start,
	}

	if elapsed := time.Since(m.start).Seconds(); elapsed > 0 {
		snap.MessagesPerSecond = float64(snap.MessageCount) / elapsed
	}

	if len(samples) == 0 {
		return snap
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}
	snap.AvgLatencyMs = sum / float64(len(samples))

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	idx := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	snap.P95LatencyMs = sorted[idx]

	return snap
}

// Start launches the periodic sampler, which logs a snapshot and
// mirrors it into the Prometheus gauges. No-op when already running.
func (m *Monitor) Start(interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done != nil {
		return
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	done := make(chan struct{})
	m.done = done

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				m.sample()
			}
		}
	}()
}

// Stop halts the sampler. Counters remain queryable afterward.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.done == nil {
		return
	}
	close(m.done)
	m.done = nil
}

func (m *Monitor) sample() {
	snap := m.Snapshot()

	metrics.MonitorMessagesPerSecond.Set(snap.MessagesPerSecond)
	metrics.MonitorAvgLatency.Set(snap.AvgLatencyMs)
	metrics.MonitorP95Latency.Set(snap.P95LatencyMs)
	metrics.MonitorErrorsTotal.Set(float64(snap.ErrorCount))

	m.log.Infow("performance sample",
		"message_count", snap.MessageCount,
		"error_count", snap.ErrorCount,
		"avg_latency_ms", snap.AvgLatencyMs,
		"p95_latency_ms", snap.P95LatencyMs,
		"messages_per_second", snap.MessagesPerSecond,
	)
}
