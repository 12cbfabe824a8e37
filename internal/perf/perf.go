// Package perf collects timing and throughput statistics for the search
// and indexing pipeline.
package perf

import (
	"sort"
	"sync"
	"time"
)

// Monitor provides hooks to observe pipeline operations. Implement this
// interface to track timings, or use NewMonitor for the collecting
// implementation and NewNoop to disable observation.
type Monitor interface {
	// RecordOperation records one completed operation of the named kind.
	RecordOperation(name string, duration time.Duration)

	// RecordSearch records a completed query with its mode and hit count.
	RecordSearch(mode string, duration time.Duration, hits int)

	// RecordIndexed records chunks persisted for a media item.
	RecordIndexed(chunks int, duration time.Duration)
}

// noopMonitor discards all observations.
type noopMonitor struct{}

var _ Monitor = (*noopMonitor)(nil)

func (noopMonitor) RecordOperation(_ string, _ time.Duration) {}
func (noopMonitor) RecordSearch(_ string, _ time.Duration, _ int) {}
func (noopMonitor) RecordIndexed(_ int, _ time.Duration)          {}

// NewNoop returns a monitor that discards everything.
func NewNoop() Monitor {
	return noopMonitor{}
}

// OperationStats aggregates timings for one operation kind.
type OperationStats struct {
	Name       string
	Count      int64
	Total      time.Duration
	Min        time.Duration
	Max        time.Duration
	LastAt     time.Time
}

// Mean returns the average duration, or 0 with no samples.
func (s OperationStats) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// SearchStats aggregates query metrics per mode.
type SearchStats struct {
	Mode      string
	Queries   int64
	TotalHits int64
	Total     time.Duration
}

// MeanLatency returns the average query duration.
func (s SearchStats) MeanLatency() time.Duration {
	if s.Queries == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Queries)
}

// IndexStats aggregates ingestion throughput.
type IndexStats struct {
	Batches     int64
	TotalChunks int64
	Total       time.Duration
}

// ChunksPerSecond returns ingestion throughput, 0 with no time recorded.
func (s IndexStats) ChunksPerSecond() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.TotalChunks) / s.Total.Seconds()
}

// CollectingMonitor is a mutex-guarded Monitor that aggregates stats.
// Safe for concurrent use from ingestion and search paths.
type CollectingMonitor struct {
	mu         sync.Mutex
	operations map[string]*OperationStats
	searches   map[string]*SearchStats
	indexing   IndexStats
}

var _ Monitor = (*CollectingMonitor)(nil)

// NewMonitor creates a collecting monitor.
func NewMonitor() *CollectingMonitor {
	return &CollectingMonitor{
		operations: make(map[string]*OperationStats),
		searches:   make(map[string]*SearchStats),
	}
}

func (m *CollectingMonitor) RecordOperation(name string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.operations[name]
	if !ok {
		stats = &OperationStats{Name: name, Min: duration, Max: duration}
		m.operations[name] = stats
	}
	stats.Count++
	stats.Total += duration
	if duration < stats.Min {
		stats.Min = duration
	}
	if duration > stats.Max {
		stats.Max = duration
	}
	stats.LastAt = time.Now()
}

func (m *CollectingMonitor) RecordSearch(mode string, duration time.Duration, hits int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats, ok := m.searches[mode]
	if !ok {
		stats = &SearchStats{Mode: mode}
		m.searches[mode] = stats
	}
	stats.Queries++
	stats.TotalHits += int64(hits)
	stats.Total += duration
}

func (m *CollectingMonitor) RecordIndexed(chunks int, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.indexing.Batches++
	m.indexing.TotalChunks += int64(chunks)
	m.indexing.Total += duration
}

// Operation returns a snapshot of one operation's stats.
func (m *CollectingMonitor) Operation(name string) (OperationStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.operations[name]
	if !ok {
		return OperationStats{}, false
	}
	return *stats, true
}

// Operations returns snapshots of all operation stats, sorted by name.
func (m *CollectingMonitor) Operations() []OperationStats {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]OperationStats, 0, len(m.operations))
	for _, stats := range m.operations {
		out = append(out, *stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Search returns a snapshot of one mode's search stats.
func (m *CollectingMonitor) Search(mode string) (SearchStats, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats, ok := m.searches[mode]
	if !ok {
		return SearchStats{}, false
	}
	return *stats, true
}

// Indexing returns a snapshot of ingestion stats.
func (m *CollectingMonitor) Indexing() IndexStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexing
}

// Reset clears all collected stats.
func (m *CollectingMonitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operations = make(map[string]*OperationStats)
	m.searches = make(map[string]*SearchStats)
	m.indexing = IndexStats{}
}

// Timer measures one operation from creation to Stop.
type Timer struct {
	monitor Monitor
	name    string
	start   time.Time
}

// StartTimer begins timing an operation against the monitor.
func StartTimer(monitor Monitor, name string) *Timer {
	return &Timer{monitor: monitor, name: name, start: time.Now()}
}

// Stop records the elapsed time and returns it.
func (t *Timer) Stop() time.Duration {
	elapsed := time.Since(t.start)
	t.monitor.RecordOperation(t.name, elapsed)
	return elapsed
}
