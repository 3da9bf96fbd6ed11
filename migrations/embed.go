// Package migrations embeds the schema of both stores. Each store is
// migrated independently; nothing here references the other store.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed central/*.sql department/*.sql
var files embed.FS

// Central and Department are rooted at their store's directory so the
// migrator sees NNN_name.sql files at ".".
var (
	Central    = mustSub("central")
	Department = mustSub("department")
)

func mustSub(dir string) fs.FS {
	sub, err := fs.Sub(files, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

// ForStore returns the migrations for "central" or "department".
func ForStore(name string) (fs.FS, bool) {
	switch name {
	case "central":
		return Central, true
	case "department":
		return Department, true
	}
	return nil, false
}
