package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	sqlbuilder "github.com/huandu/go-sqlbuilder"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// IsPostgres reports whether the dsn points at a PostgreSQL server rather than a SQLite file
func IsPostgres(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func connection(dsn string) (*sql.DB, sqlbuilder.Flavor, error) {
	if IsPostgres(dsn) {
		return postgresConnection(dsn)
	}
	return sqliteConnection(dsn)
}

func postgresConnection(dsn string) (*sql.DB, sqlbuilder.Flavor, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, sqlbuilder.PostgreSQL, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(20)           // Allow multiple concurrent operations
	db.SetMaxIdleConns(10)           // Keep some connections ready
	db.SetConnMaxLifetime(time.Hour) // Recreate connections after an hour
	db.SetConnMaxIdleTime(time.Hour) // Close idle connections after an hour

	return db, sqlbuilder.PostgreSQL, nil
}

func sqliteConnection(path string) (*sql.DB, sqlbuilder.Flavor, error) {
	// Enable foreign keys and WAL mode
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, sqlbuilder.SQLite, err
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1)            // SQLite only supports one writer at a time
	db.SetMaxIdleConns(1)            // Keep one connection in the pool
	db.SetConnMaxLifetime(time.Hour) // Recreate connections after an hour
	db.SetConnMaxIdleTime(time.Hour) // Close idle connections after an hour

	// Configure some additional pragmas for better performance
	if _, err := db.Exec(`
		PRAGMA synchronous = NORMAL;
		PRAGMA cache_size = -32000; -- 32MB cache
		PRAGMA temp_store = MEMORY;
	`); err != nil {
		db.Close()
		return nil, sqlbuilder.SQLite, fmt.Errorf("failed to set pragmas: %w", err)
	}

	return db, sqlbuilder.SQLite, nil
}
