//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// Default build, no cgo required:
//
//	CGO_ENABLED=0 go build -tags "purego" ./...
//
// Uses the modernc.org translation of SQLite. Vector similarity runs
// as a pure-Go scan over the vectors table, which is fine for a
// single library's worth of chunks.

import (
	_ "modernc.org/sqlite"
)

const (
	DriverName = "sqlite"

	// VectorExtensionAvailable selects the SQL similarity path in the
	// vector store.
	VectorExtensionAvailable = false

	BuildMode = "purego"
)
