package monitor

import "sync"

// latencyRing is a fixed-capacity ring buffer of latency samples.
// Once full, each push evicts the oldest entry.
type latencyRing struct {
	mu   sync.Mutex
	buf  []float64
	head int
	size int
}

func newLatencyRing(capacity int) *latencyRing {
	return &latencyRing{buf: make([]float64, capacity)}
}

func (r *latencyRing) push(sample float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.buf[r.head] = sample
	r.head = (r.head + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// snapshot copies the current contents, oldest first.
func (r *latencyRing) snapshot() []float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]float64, r.size)
	if r.size < len(r.buf) {
		copy(out, r.buf[:r.size])
		return out
	}
	n := copy(out, r.buf[r.head:])
	copy(out[n:], r.buf[:r.head])
	return out
}
