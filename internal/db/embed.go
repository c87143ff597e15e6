package db

import "embed"

// EmbedMigrations holds the ledger schema migrations, compiled into the
// binary so a fresh deployment needs no migration files on disk.
//
//go:embed migrations/*.sql
var EmbedMigrations embed.FS
