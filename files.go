package identity

import "embed"

//go:embed data/sql/migrations
var migrationsFS embed.FS

// GetMigrationsFS exposes the SQL migrations embedded with the package, so
// callers can run them without shipping the files separately
func GetMigrationsFS() embed.FS {
	return migrationsFS
}
