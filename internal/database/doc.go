// Package database provides SQLite-based storage for threadcap.
//
// This package implements the Store, which keeps:
//   - Raw fetched responses, so that the freshness-windowed cache survives
//     between runs of the command line tool
//   - A history of snapshots, one row per update pass, for comparing how a
//     thread evolved
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
