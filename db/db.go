// Package db embeds the SQL migrations so binaries can run them without files on disk.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
