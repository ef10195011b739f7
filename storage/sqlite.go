package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

type SQLiteConfig struct {
	OnDisk    bool
	Directory string
}

// NewSQLiteStorage opens an SQLite-backed Storage. Without config the
// database lives in memory, which is what the tests use.
func NewSQLiteStorage(cfg ...SQLiteConfig) (*SQLStorage, error) {
	onDisk := false
	directory := ""
	if len(cfg) > 0 {
		onDisk = cfg[0].OnDisk
		directory = cfg[0].Directory
	}

	sourceName := ":memory:"
	if onDisk {
		sourceName = directory + "/datahub.db"
	}

	db, err := sql.Open("sqlite3", sourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// The in-memory database disappears when its last connection
	// closes. Pin a single connection so it survives the pool.
	if !onDisk {
		db.SetMaxOpenConns(1)
	}

	return newSQLStorage(db, false, false)
}
