//go:build sqlite_vec
// +build sqlite_vec

package storage

// cgo build with the sqlite-vec extension compiled in:
//
//	CGO_ENABLED=1 go build -tags "sqlite_vec,fts5" ./...
//
// sqlite-vec adds a native cosine-distance operator, so similarity
// search runs inside SQLite instead of the pure-Go scan. FTS5 comes
// from the same mattn/go-sqlite3 build.

import (
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverName = "sqlite3"

	// VectorExtensionAvailable selects the SQL similarity path in the
	// vector store.
	VectorExtensionAvailable = true

	BuildMode = "cgo"
)
