package db

import "embed"

// MigrationFS holds the schema: current-state tables, the ledger, halts, idempotency records,
// validation jobs and audit policies.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
