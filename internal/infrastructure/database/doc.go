// Package database provides SQLite storage for the reading collector.
//
// This package manages:
//   - Database connection with WAL mode so reads can run during inserts
//   - Schema migrations embedded from the top-level migrations package
//   - A single pooled connection, matching SQLite's single writer
//   - WAL checkpoints after pruning
//   - STRICT tables for type safety
//
// The database file is created with 0600 permissions. All queries use
// parameterised statements.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Collector.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migrations:
//
// Files are named YYYYMMDD_HHMMSS_name.up.sql with an optional matching
// .down.sql, and are registered with UseMigrations. Applied versions are
// kept in schema_migrations. Keep them additive so a rollback never loses
// readings: new columns are NULLABLE or have DEFAULT values, and columns
// are never dropped or renamed.
package database
