// Package migrations holds the postgres cache schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
