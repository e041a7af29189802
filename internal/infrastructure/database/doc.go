// Package database provides SQLite persistence for Kasa Monitor.
//
// It wraps database/sql with:
//   - Connection setup (WAL mode, busy timeout, foreign keys)
//   - Embedded schema migrations applied at startup
//   - Health checks and pool statistics
//
// The database holds the relational copy of device readings. The
// ingestion pipeline writes rows; this service only reads them, so the
// pool is tuned for a single shared connection.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Database.Path})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//	if err := db.Migrate(ctx); err != nil {
//	    return err
//	}
package database
