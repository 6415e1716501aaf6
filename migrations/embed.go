// Package migrations embeds the door event journal schema into the binary.
//
// Importing this package registers the migrations with the database
// package, so the agent can migrate without SQL files on disk.
package migrations

import (
	"embed"

	"github.com/nerrad567/rpigarage/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
