// Package memmon tracks memory use of registered consumers and invokes
// pressure callbacks when a budget is exceeded.
package memmon

import (
	"log/slog"
	"runtime"
	"sort"
	"sync"
)

// PressureLevel describes how far over budget the process is.
type PressureLevel int

const (
	PressureNone PressureLevel = iota
	PressureModerate
	PressureCritical
)

func (p PressureLevel) String() string {
	switch p {
	case PressureNone:
		return "none"
	case PressureModerate:
		return "moderate"
	case PressureCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Callback is invoked synchronously when pressure is detected. Consumers
// release what they can (unload models, shrink caches) and return the
// bytes they freed.
type Callback func(level PressureLevel) int64

// Manager tracks per-consumer memory accounting against a budget. All
// methods are safe for concurrent use; callbacks run synchronously on
// the thread that detected the breach, outside the manager's lock.
type Manager struct {
	mu        sync.Mutex
	budget    int64
	usage     map[string]int64
	callbacks map[string]Callback
	logger    *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New creates a manager with the given budget in bytes. A zero or
// negative budget disables pressure detection.
func New(budgetBytes int64, opts ...Option) *Manager {
	m := &Manager{
		budget:    budgetBytes,
		usage:     make(map[string]int64),
		callbacks: make(map[string]Callback),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a pressure callback under a consumer name, replacing
// any previous callback for that name.
func (m *Manager) Register(name string, cb Callback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks[name] = cb
}

// Unregister removes a consumer's callback and accounting.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.callbacks, name)
	delete(m.usage, name)
}

// Track records a consumer's current memory use in bytes and triggers
// cleanup if the total breaches the budget.
func (m *Manager) Track(name string, bytes int64) {
	m.mu.Lock()
	if bytes <= 0 {
		delete(m.usage, name)
	} else {
		m.usage[name] = bytes
	}
	level := m.pressureLocked()
	m.mu.Unlock()

	if level != PressureNone {
		m.runCallbacks(level)
	}
}

// Usage returns the total tracked bytes.
func (m *Manager) Usage() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalLocked()
}

// UsageOf returns one consumer's tracked bytes.
func (m *Manager) UsageOf(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.usage[name]
}

// Pressure returns the current pressure level.
func (m *Manager) Pressure() PressureLevel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pressureLocked()
}

func (m *Manager) totalLocked() int64 {
	var total int64
	for _, bytes := range m.usage {
		total += bytes
	}
	return total
}

// pressureLocked maps usage to a level: moderate above the budget,
// critical above 1.5x. Caller holds mu.
func (m *Manager) pressureLocked() PressureLevel {
	if m.budget <= 0 {
		return PressureNone
	}
	total := m.totalLocked()
	switch {
	case total > m.budget+m.budget/2:
		return PressureCritical
	case total > m.budget:
		return PressureModerate
	default:
		return PressureNone
	}
}

// RequestCleanup invokes all callbacks at the given level regardless of
// current usage, returning the total bytes reported freed.
func (m *Manager) RequestCleanup(level PressureLevel) int64 {
	return m.runCallbacks(level)
}

// runCallbacks invokes callbacks in deterministic name order, without
// holding the lock so callbacks may call Track.
func (m *Manager) runCallbacks(level PressureLevel) int64 {
	m.mu.Lock()
	names := make([]string, 0, len(m.callbacks))
	for name := range m.callbacks {
		names = append(names, name)
	}
	sort.Strings(names)
	cbs := make([]Callback, len(names))
	for i, name := range names {
		cbs[i] = m.callbacks[name]
	}
	m.mu.Unlock()

	var freed int64
	for i, cb := range cbs {
		released := cb(level)
		if released > 0 {
			m.logger.Debug("memory released", "consumer", names[i], "bytes", released)
			freed += released
		}
	}
	return freed
}

// ProcessBytes reports the Go runtime's current heap-allocated bytes,
// a cheap approximation for consumers that cannot self-report.
func ProcessBytes() int64 {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	return int64(stats.HeapAlloc)
}
