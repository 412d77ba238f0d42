package database

import (
	"embed"
	"io/fs"
)

// EmbeddedMigrations holds migrations/*.sql, compiled into the binary.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS

// Migrations returns the migrations directory as its own root, the form
// New expects.
func Migrations() fs.FS {
	sub, err := fs.Sub(EmbeddedMigrations, "migrations")
	if err != nil {
		// only fails on a malformed path literal
		panic(err)
	}
	return sub
}
