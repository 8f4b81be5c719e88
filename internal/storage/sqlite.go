package storage

import (
	"database/sql"
	"fmt"

	"github.com/kirillm/agent-arena/internal/storage/repository"
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteStore opens (or creates) a SQLite database file and migrates it.
// The pool is limited to one connection; SQLite serialises writers anyway.
func NewSQLiteStore(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return newStore(db, repository.SQLite)
}
