//go:build purego || !sqlite_vec
// +build purego !sqlite_vec

package storage

// This file is compiled by default and with the purego tag.
//
// Build command:
//   CGO_ENABLED=0 go build ./...
//
// No C compiler is required and the binary cross-compiles cleanly.
//
// Driver used: modernc.org/sqlite

import (
	_ "modernc.org/sqlite"
)

const (
	// DriverName is the SQLite driver to use
	DriverName = "sqlite"

	// VectorExtensionAvailable indicates if vector extension is available
	VectorExtensionAvailable = false

	// BuildMode describes the current build configuration
	BuildMode = "purego"
)
