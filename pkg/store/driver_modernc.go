//go:build !palace_cgo

package store

import (
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

const driverName = "sqlite"
