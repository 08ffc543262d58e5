// Package migrations embeds the SQL migration files into the binary.
//
// Files are at the root of FS, named NNNN_description.sql.
package migrations

import "embed"

// FS holds the embedded migrations. Pass it to database.DB.Migrate.
//
//go:embed *.sql
var FS embed.FS
