// Package migrations embeds the collector's SQL migration files into the
// binary, so a fresh readings database can be created without the SQL
// files present on disk. Import it for its side effect.
package migrations

import (
	"embed"

	"github.com/nerrad567/gray-logic-sensor/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.UseMigrations(files, ".")
}
