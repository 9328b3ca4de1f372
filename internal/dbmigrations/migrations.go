// Package dbmigrations embeds the goose SQL migration set, mirroring the
// teacher's internal/db/migrations layout (embedded FS handed to
// goose.SetBaseFS so the binary carries its own schema).
package dbmigrations

import "embed"

//go:embed *.sql
var FS embed.FS
