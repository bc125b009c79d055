package metrics

import (
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome statuses counted separately; they match the scheduler's.
const (
	StatusApplied = "applied"
	StatusFailed  = "failed"
)

// HandlerEvent captures one handler run on one page
type HandlerEvent struct {
	ID        string        `json:"id"`
	Timestamp time.Time     `json:"timestamp"`
	Handler   int           `json:"handler"`
	Page      string        `json:"page,omitempty"`
	Status    string        `json:"status"`
	Duration  time.Duration `json:"duration"`
}

// AggregateStats holds computed aggregate statistics
type AggregateStats struct {
	// Counts
	TotalRuns    int64            `json:"total_runs"`
	TotalApplied int64            `json:"total_applied"`
	TotalFailed  int64            `json:"total_failed"`
	ByStatus     map[string]int64 `json:"by_status"`

	// Latency stats (in milliseconds for JSON readability)
	AvgDurationMs float64 `json:"avg_duration_ms"`
	P50DurationMs float64 `json:"p50_duration_ms"`
	P95DurationMs float64 `json:"p95_duration_ms"`
	P99DurationMs float64 `json:"p99_duration_ms"`
	MaxDurationMs float64 `json:"max_duration_ms"`

	// Throughput
	RunsPerMinute float64 `json:"runs_per_minute"`
	ApplyRate     float64 `json:"apply_rate"`

	// By handler breakdown, keyed by handler id
	ByHandler map[string]*HandlerStats `json:"by_handler"`

	// Time window
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// HandlerStats holds stats for a single handler
type HandlerStats struct {
	Count         int64   `json:"count"`
	Applied       int64   `json:"applied"`
	Failed        int64   `json:"failed"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}

type atomicCounters struct {
	totalRuns    atomic.Int64
	totalApplied atomic.Int64
	totalFailed  atomic.Int64
}

// Collector collects and stores handler metrics
type Collector struct {
	mu       sync.RWMutex
	events   []HandlerEvent
	byStatus map[string]int64
	counters atomicCounters

	// Configuration
	maxEvents  int
	windowSize time.Duration

	// Start time for throughput calculation
	startTime time.Time
}

// CollectorOption configures a Collector
type CollectorOption func(*Collector)

// WithMaxEvents sets the maximum number of events to retain
func WithMaxEvents(n int) CollectorOption {
	return func(c *Collector) {
		c.maxEvents = n
	}
}

// WithWindowSize sets the time window for aggregate stats
func WithWindowSize(d time.Duration) CollectorOption {
	return func(c *Collector) {
		c.windowSize = d
	}
}

// NewCollector creates a new metrics collector
func NewCollector(opts ...CollectorOption) *Collector {
	c := &Collector{
		events:     make([]HandlerEvent, 0, 1000),
		byStatus:   make(map[string]int64),
		maxEvents:  10000,
		windowSize: 1 * time.Hour,
		startTime:  time.Now(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Record adds a handler event to the collector
func (c *Collector) Record(event HandlerEvent) {
	c.counters.totalRuns.Add(1)
	switch event.Status {
	case StatusApplied:
		c.counters.totalApplied.Add(1)
	case StatusFailed:
		c.counters.totalFailed.Add(1)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.byStatus[event.Status]++
	if c.maxEvents <= 0 {
		return
	}
	c.events = append(c.events, event)

	// Prune old events if needed
	if len(c.events) > c.maxEvents {
		// Remove oldest 10%
		pruneCount := max(c.maxEvents/10, 1)
		c.events = c.events[pruneCount:]
	}
}

// GetStats computes aggregate statistics from collected events
func (c *Collector) GetStats() AggregateStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := time.Now()
	windowStart := now.Add(-c.windowSize)

	stats := AggregateStats{
		TotalRuns:    c.counters.totalRuns.Load(),
		TotalApplied: c.counters.totalApplied.Load(),
		TotalFailed:  c.counters.totalFailed.Load(),
		ByStatus:     make(map[string]int64, len(c.byStatus)),
		ByHandler:    make(map[string]*HandlerStats),
		WindowStart:  windowStart,
		WindowEnd:    now,
	}
	for s, n := range c.byStatus {
		stats.ByStatus[s] = n
	}
	if stats.TotalRuns > 0 {
		stats.ApplyRate = float64(stats.TotalApplied) / float64(stats.TotalRuns)
	}

	// Filter events within window and compute detailed stats
	var windowEvents []HandlerEvent
	for _, e := range c.events {
		if e.Timestamp.After(windowStart) {
			windowEvents = append(windowEvents, e)
		}
	}

	if len(windowEvents) == 0 {
		return stats
	}

	durations := make([]float64, 0, len(windowEvents))
	var sum float64
	handlerDurations := make(map[int]float64)
	for _, e := range windowEvents {
		ms := float64(e.Duration) / float64(time.Millisecond)
		durations = append(durations, ms)
		sum += ms

		key := strconv.Itoa(e.Handler)
		hs := stats.ByHandler[key]
		if hs == nil {
			hs = &HandlerStats{}
			stats.ByHandler[key] = hs
		}
		hs.Count++
		switch e.Status {
		case StatusApplied:
			hs.Applied++
		case StatusFailed:
			hs.Failed++
		}
		handlerDurations[e.Handler] += ms
	}
	for id, total := range handlerDurations {
		hs := stats.ByHandler[strconv.Itoa(id)]
		hs.AvgDurationMs = total / float64(hs.Count)
	}

	stats.AvgDurationMs = sum / float64(len(windowEvents))

	slices.Sort(durations)
	stats.P50DurationMs = percentile(durations, 0.50)
	stats.P95DurationMs = percentile(durations, 0.95)
	stats.P99DurationMs = percentile(durations, 0.99)
	stats.MaxDurationMs = durations[len(durations)-1]

	// Throughput
	elapsed := now.Sub(c.startTime).Minutes()
	if elapsed > 0 {
		stats.RunsPerMinute = float64(stats.TotalRuns) / elapsed
	}

	return stats
}

// GetRecentEvents returns the most recent n events
func (c *Collector) GetRecentEvents(n int) []HandlerEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if n > len(c.events) {
		n = len(c.events)
	}
	if n <= 0 {
		return nil
	}

	// Return copy of most recent events
	result := make([]HandlerEvent, n)
	copy(result, c.events[len(c.events)-n:])
	return result
}

// Reset clears all collected metrics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.events = c.events[:0]
	c.byStatus = make(map[string]int64)
	c.counters = atomicCounters{}
	c.startTime = time.Now()
}

// percentile returns the value at the given percentile (0.0-1.0)
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := int(float64(len(sorted)-1) * p)
	return sorted[idx]
}
