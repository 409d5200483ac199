// Package migrations embeds the schema migration files so the server
// binary can migrate on startup without shipping SQL alongside it.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
