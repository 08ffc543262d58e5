// Package database provides the SQLite handle behind the cycle journal.
//
// This package manages:
//   - Opening the database file with WAL mode and a busy timeout
//   - Forward-only schema migrations read from an fs.FS
//   - Health checks
//
// The journal is diagnostic. Sensor values are never written here and are
// never reloaded on start.
//
// Usage:
//
//	db, err := database.Open(database.Config{Path: cfg.Journal.Path, WALMode: true})
//	if err != nil {
//	    return err
//	}
//	defer db.Close()
//
//	if err := db.Migrate(ctx, migrations.FS); err != nil {
//	    return err
//	}
package database
