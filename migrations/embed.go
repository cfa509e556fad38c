// Package migrations carries the SQL schema migrations of the sync engine.
package migrations

import "embed"

// FS holds every *.up.sql and *.down.sql file, embedded into the binaries
//
//go:embed *.sql
var FS embed.FS
