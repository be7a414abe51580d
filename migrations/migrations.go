// Package migrations contains the SQL schema of the account store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
