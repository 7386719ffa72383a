// Package database provides SQLite connectivity for the agent's local state.
//
// The agent keeps a handful of opaque values (device id, last configuration
// document, cached network list) across power cycles. They live in a single
// SQLite file opened here and migrated with forward-only SQL files embedded
// by the migrations package.
//
// Usage:
//
//	db, err := database.Open(ctx, database.Config{Path: cfg.Database.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
