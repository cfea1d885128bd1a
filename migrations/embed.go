// Package migrations embeds the PostgreSQL schema of the directory service.
package migrations

import "embed"

// FS holds the *.up.sql files applied at startup.
//
//go:embed *.up.sql
var FS embed.FS
