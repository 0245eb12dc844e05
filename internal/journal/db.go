// Package journal keeps an in-memory SQLite record of memory item
// transitions. It lives only as long as the process; nothing touches disk.
package journal

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/sesm/sesm/internal/logger"
)

// DB wraps a sql.DB connection to the in-memory journal database.
type DB struct {
	*sql.DB
	log logger.Logger
}

// Open opens a fresh in-memory journal and runs migrations.
func Open(log logger.Logger) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open sqlite memory: %w", err)
	}
	// Every new connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)
	sqlDB.SetConnMaxIdleTime(0)

	if log == nil {
		log = logger.Discard()
	}
	db := &DB{DB: sqlDB, log: log}
	if err := db.configurePragmas(); err != nil {
		sqlDB.Close()
		return nil, err
	}
	if err := db.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func (db *DB) configurePragmas() error {
	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("pragma %q: %w", p, err)
		}
	}
	return nil
}
