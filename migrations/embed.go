// Package migrations embeds the gateway's SQL migration files into the binary.
//
// Importing it for side effects registers the files with the database
// package, so the SQLite credential store can migrate without the .sql files
// on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/lutron-gateway/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
