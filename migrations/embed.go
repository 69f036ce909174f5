// Package migrations holds the numbered PostgreSQL schema files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
