// Package migrations embeds the SQL schema of the report history.
package migrations

import "embed"

// FS contains the numbered *.up.sql files.
//
//go:embed *.sql
var FS embed.FS
