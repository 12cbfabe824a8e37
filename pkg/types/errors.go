package types

import "errors"

// Error taxonomy shared across the search subsystem. Storage and model
// failures never cross the search-engine boundary as hard errors; callers
// degrade to the surviving signal instead.
var (
	// ErrNotInitialized is returned when an operation requires setup that
	// has not happened, such as embedding before a model is loaded.
	ErrNotInitialized = errors.New("not initialized")

	// ErrInvalidInput covers empty queries, malformed vocabularies, and
	// zero-length files.
	ErrInvalidInput = errors.New("invalid input")

	// ErrStorageFailure wraps persistent-store read/write errors.
	ErrStorageFailure = errors.New("storage failure")

	// ErrModelUnavailable means the inference backend is missing or failed
	// to load. Always recoverable by keyword-only or unweighted ranking.
	ErrModelUnavailable = errors.New("model unavailable")

	// ErrCancelled reports a cooperative cancellation was observed.
	ErrCancelled = errors.New("operation cancelled")
)
