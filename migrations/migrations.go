// Package migrations embeds the schema so cmd/migrate ships without a
// separate SQL directory.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
