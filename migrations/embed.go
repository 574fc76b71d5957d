package migrations

import "embed"

// Postgres и SQLite схемы лежат в разных каталогах: диалекты отличаются.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
