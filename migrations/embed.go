// Package migrations embeds the SQL schema for the agent's local state.
package migrations

import "embed"

// FS holds every *.up.sql file in this directory.
//
//go:embed *.sql
var FS embed.FS
