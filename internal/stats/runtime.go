// Package stats summarizes the outcome of a cluster run.
package stats

import (
	"sync"
	"time"

	"github.com/influxdata/tdigest"
)

// RuntimeStats tracks the distribution of node runtimes.
// Safe for concurrent use.
type RuntimeStats struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	count  int
	min    time.Duration
	max    time.Duration
	total  time.Duration
}

// NewRuntimeStats creates an empty runtime distribution.
func NewRuntimeStats() *RuntimeStats {
	return &RuntimeStats{
		digest: tdigest.NewWithCompression(100),
	}
}

// Add records one node runtime.
func (r *RuntimeStats) Add(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.digest.Add(float64(d), 1)
	if r.count == 0 || d < r.min {
		r.min = d
	}
	if d > r.max {
		r.max = d
	}
	r.count++
	r.total += d
}

// RuntimeSnapshot is a point-in-time view of a RuntimeStats.
type RuntimeSnapshot struct {
	Count int
	Min   time.Duration
	Max   time.Duration
	Mean  time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// Snapshot returns the current distribution. Zero-valued when empty.
func (r *RuntimeStats) Snapshot() RuntimeSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.count == 0 {
		return RuntimeSnapshot{}
	}

	return RuntimeSnapshot{
		Count: r.count,
		Min:   r.min,
		Max:   r.max,
		Mean:  r.total / time.Duration(r.count),
		P50:   r.quantile(0.50),
		P95:   r.quantile(0.95),
		P99:   r.quantile(0.99),
	}
}

// quantile clamps the digest estimate to the observed range.
func (r *RuntimeStats) quantile(q float64) time.Duration {
	v := time.Duration(r.digest.Quantile(q))
	if v < r.min {
		return r.min
	}
	if v > r.max {
		return r.max
	}
	return v
}
