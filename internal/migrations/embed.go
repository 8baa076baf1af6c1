// Package migrations embeds the SQL schema (spec §6.3) and applies it
// in lexical order, adapted from the teacher's
// internal/storage/migrations package.
package migrations

import "embed"

// PostgresFS embeds all PostgreSQL migration files.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS
