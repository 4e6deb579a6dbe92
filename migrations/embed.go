// Package migrations embeds SQL migration files into the binary, so
// Halcyon can migrate its schema without the SQL files being present on
// the filesystem.
package migrations

import (
	"embed"

	"github.com/halcyonbeam/halcyon-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
