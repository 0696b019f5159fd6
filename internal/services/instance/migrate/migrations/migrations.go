// Package migrations embeds the schema of every supported backend.
package migrations

import "embed"

// FS holds one directory of migrations per backend.
//
//go:embed sqlite/*.sql mysql/*.sql postgres/*.sql
var FS embed.FS

// Directories of FS per backend.
const (
	SQLiteDir   = "sqlite"
	MySQLDir    = "mysql"
	PostgresDir = "postgres"
)
