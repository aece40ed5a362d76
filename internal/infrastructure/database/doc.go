// Package database provides SQLite connectivity for the Lutron gateway.
//
// The database holds the bridge credential store: PEM key material for the
// LEAP TLS connection and Telnet logins, one row per bridge.
//
// Open creates the file owner-only (0600) before SQLite opens it and keeps a
// single connection, optionally in WAL mode. Migrate, MigrateDown and
// MigrationStatus apply the embedded schema from package migrations.
// Queries are always parameterised.
//
// Usage:
//
//	db, err := database.Open(database.ConfigFrom(cfg.Database))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Migration files are named YYYYMMDD_HHMMSS_description.up.sql, with a
// matching .down.sql. Migrations are additive: new columns must be NULLABLE
// or carry a DEFAULT.
package database
