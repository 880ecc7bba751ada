// Package migrations embeds the SQL migrations for the client upload journal.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
