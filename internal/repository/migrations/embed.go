// Package migrations embeds the SQLite ledger schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
