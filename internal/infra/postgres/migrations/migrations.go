// Package migrations registers the Postgres schema with bun's migrator. Each
// file is named <version>_<name>.go because bun derives the migration name
// from the registering file.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
