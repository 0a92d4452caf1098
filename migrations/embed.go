package migrations

import "embed"

// FS holds the golang-migrate files (NNNN_name.up.sql / NNNN_name.down.sql).
//
//go:embed *.sql
var FS embed.FS
