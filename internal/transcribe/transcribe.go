// Package transcribe defines the transcription provider plugin
// interface and a provider manager that tracks usage through the
// chunk store's provider registry.
package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/medialib/scenesearch/internal/storage"
	"github.com/medialib/scenesearch/pkg/types"
)

// SegmentFunc receives each transcribed segment as it arrives.
type SegmentFunc func(segment types.ParsedEntry)

// ProgressFunc receives completion fractions in [0,1].
type ProgressFunc func(fraction float64)

// ErrorFunc receives non-fatal errors emitted during transcription.
type ErrorFunc func(err error)

// Provider is a pluggable transcription backend. The search subsystem
// depends only on this interface, never on a specific vendor.
type Provider interface {
	Name() string
	ID() string
	IsConfigured() bool
	IsAvailable(ctx context.Context) bool

	// Transcribe processes the media file, invoking the callbacks as
	// segments arrive. It returns a job ID for logging/correlation.
	Transcribe(ctx context.Context, path string, onSegment SegmentFunc, onProgress ProgressFunc, onError ErrorFunc) (string, error)

	// Cancel cooperatively stops an in-flight transcription.
	Cancel()

	// EstimateCost returns the projected cost for a media duration.
	EstimateCost(durationMs int64) float64
}

// Manager registers providers and records their usage in the store.
type Manager struct {
	mu        sync.RWMutex
	store     storage.Store
	providers map[string]Provider
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

// NewManager creates an empty provider manager.
func NewManager(store storage.Store, opts ...Option) *Manager {
	m := &Manager{
		store:     store,
		providers: make(map[string]Provider),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Register adds a provider and persists its registry row. Usage
// counters of a previously registered provider survive.
func (m *Manager) Register(ctx context.Context, p Provider) error {
	if p == nil || p.ID() == "" {
		return fmt.Errorf("%w: provider must have an id", types.ErrInvalidInput)
	}
	if err := m.store.UpdateProvider(ctx, &storage.Provider{
		ID:         p.ID(),
		Name:       p.Name(),
		Configured: p.IsConfigured(),
	}); err != nil {
		return fmt.Errorf("persist provider %s: %w", p.ID(), err)
	}
	m.mu.Lock()
	m.providers[p.ID()] = p
	m.mu.Unlock()
	return nil
}

// Get returns a registered provider.
func (m *Manager) Get(providerID string) (Provider, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.providers[providerID]
	return p, ok
}

// List returns registered provider IDs in stable order.
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.providers))
	for id := range m.providers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Transcribe runs a provider against a media file and records usage on
// success. durationMs is the media length, used for cost accounting.
func (m *Manager) Transcribe(ctx context.Context, providerID, path string, durationMs int64, onSegment SegmentFunc, onProgress ProgressFunc, onError ErrorFunc) (string, error) {
	provider, ok := m.Get(providerID)
	if !ok {
		return "", fmt.Errorf("%w: unknown provider %q", types.ErrInvalidInput, providerID)
	}
	if !provider.IsConfigured() {
		return "", fmt.Errorf("provider %s is not configured", providerID)
	}

	jobID, err := provider.Transcribe(ctx, path, onSegment, onProgress, onError)
	if err != nil {
		return jobID, err
	}

	cost := provider.EstimateCost(durationMs)
	if err := m.store.UpdateProviderUsage(ctx, providerID, durationMs, cost); err != nil {
		// Usage accounting never fails a successful transcription.
		m.logger.Warn("provider usage update failed", "provider", providerID, "error", err)
	}
	return jobID, nil
}
