package migrations

import "github.com/uptrace/bun/migrate"

// Migrations is the registry applied by the migrate subcommand.
var Migrations = migrate.NewMigrations()
