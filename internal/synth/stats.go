package synth

import (
	"sort"
	"sync"
	"time"
)

type sample struct {
	at      time.Time
	latency time.Duration
}

// StatsSnapshot aggregates recent successful request latencies plus the
// lifetime failure counts by kind.
type StatsSnapshot struct {
	Count    int              `json:"count"`
	MinMs    int64            `json:"min_ms"`
	MaxMs    int64            `json:"max_ms"`
	AvgMs    float64          `json:"avg_ms"`
	P50Ms    float64          `json:"p50_ms"`
	P95Ms    float64          `json:"p95_ms"`
	P99Ms    float64          `json:"p99_ms"`
	Failures map[string]int64 `json:"failures,omitempty"`
}

// Stats tracks synthesis latencies within a rolling window.
type Stats struct {
	mu       sync.Mutex
	samples  []sample
	maxAge   time.Duration
	failures map[Kind]int64
}

func NewStats(maxAge time.Duration) *Stats {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	return &Stats{
		samples:  make([]sample, 0, 256),
		maxAge:   maxAge,
		failures: make(map[Kind]int64),
	}
}

func (s *Stats) Record(latency time.Duration) {
	if latency < 0 {
		latency = 0
	}
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)
	s.samples = append(s.samples, sample{at: now, latency: latency})
}

func (s *Stats) RecordFailure(kind Kind) {
	s.mu.Lock()
	s.failures[kind]++
	s.mu.Unlock()
}

func (s *Stats) Snapshot() StatsSnapshot {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	var snap StatsSnapshot
	if len(s.failures) > 0 {
		snap.Failures = make(map[string]int64, len(s.failures))
		for k, n := range s.failures {
			snap.Failures[k.String()] = n
		}
	}

	s.pruneLocked(now)
	if len(s.samples) == 0 {
		return snap
	}

	values := make([]int64, 0, len(s.samples))
	var sum int64
	for _, sm := range s.samples {
		ms := sm.latency.Milliseconds()
		values = append(values, ms)
		sum += ms
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })

	snap.Count = len(values)
	snap.MinMs = values[0]
	snap.MaxMs = values[len(values)-1]
	snap.AvgMs = float64(sum) / float64(len(values))
	snap.P50Ms = percentile(values, 50)
	snap.P95Ms = percentile(values, 95)
	snap.P99Ms = percentile(values, 99)
	return snap
}

func (s *Stats) pruneLocked(now time.Time) {
	cutoff := now.Add(-s.maxAge)
	keep := s.samples[:0]
	for _, sm := range s.samples {
		if !sm.at.Before(cutoff) {
			keep = append(keep, sm)
		}
	}
	s.samples = keep
}

// percentile interpolates linearly between the closest ranks.
func percentile(sorted []int64, pct float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if pct <= 0 {
		return float64(sorted[0])
	}
	if pct >= 100 {
		return float64(sorted[len(sorted)-1])
	}
	rank := float64(len(sorted)-1) * pct / 100
	lower := int(rank)
	if lower+1 >= len(sorted) {
		return float64(sorted[lower])
	}
	lo, hi := float64(sorted[lower]), float64(sorted[lower+1])
	return lo + (hi-lo)*(rank-float64(lower))
}
