// Package database provides SQLite-based persistence for scan jobs.
//
// This package implements the JobStore, which stores:
//   - Full job snapshots, upserted on every lifecycle transition
//   - Per-scan finding rows for querying across scan history
//
// Design decision: We use SQLite (via modernc.org/sqlite) instead of other
// databases because:
// 1. No external dependencies - the database is a single file
// 2. CGO-free implementation allows easy cross-compilation
// 3. Sufficient performance for our use case
// 4. WAL mode provides good concurrent read performance
package database
