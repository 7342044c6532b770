package db

import "embed"

// MigrationFS embeds the ledger schema migrations from internal/db/migrations.
// Used by the migrate runner (cmd/migrate) when LEDGER_BACKEND=postgres.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
