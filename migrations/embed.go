// Package migrations embeds the TrackerLink SQL migrations into the binary.
package migrations

import (
	"embed"

	"github.com/nerrad567/trackerlink-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
