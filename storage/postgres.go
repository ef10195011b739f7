package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// NewPSQLStorage opens a Postgres-backed Storage using the provided
// connection string.
//
// If clearDB is true, all tables are dropped and recreated on
// startup. You probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*SQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return newSQLStorage(db, true, clearDB)
}
