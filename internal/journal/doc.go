// Package journal persists supervisor cycle records to SQLite.
//
// The journal is diagnostic only. Slot values are never written here and
// nothing is reloaded from it at startup.
//
// Usage:
//
//	db, _ := database.Open(database.Config{Path: "./data/sensorlink.db"})
//	_ = db.Migrate(ctx, migrations.FS)
//	j := journal.New(db, "greenhouse-display", 1000)
//	sup.SetRecorder(j)
package journal
