package db

import "embed"

// MigrationsFS holds the PostgreSQL whitelist schema migrations.
//
//go:embed migrations/*.sql
var MigrationsFS embed.FS
