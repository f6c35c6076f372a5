// Package migrations embeds SQL migration files for use at runtime.
// Each supported driver has its own directory because the dialects differ.
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
)

//go:embed postgres/*.sql sqlite/*.sql
var files embed.FS

// For returns the migration files for driver ("postgres" or "sqlite").
func For(driver string) (fs.FS, error) {
	switch driver {
	case "postgres", "sqlite":
		return fs.Sub(files, driver)
	default:
		return nil, fmt.Errorf("migrations: no migrations for driver %q", driver)
	}
}
