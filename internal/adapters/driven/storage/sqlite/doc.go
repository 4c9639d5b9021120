// Package sqlite provides the SQLite-backed DocumentStore.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. Documents and their chunk records live in one database file; vectors are
// kept in the VectorIndex and addressed through the chunk ids stored here.
//
// # Schema
//
// The schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.ragengine/data/documents.db
//
// # Thread Safety
//
// All operations are safe for concurrent use. Writes run in a transaction so a
// revision check and the write it guards are atomic.
package sqlite
