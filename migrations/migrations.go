// Package migrations embeds the schema files so the binary can bootstrap
// its own database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
