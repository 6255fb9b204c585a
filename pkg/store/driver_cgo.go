//go:build palace_cgo

package store

import (
	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver
)

const driverName = "sqlite3"
