package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	// Registers "libsql" with database/sql.
	// Handles remote URLs (libsql://, https://, wss://).
	_ "github.com/tursodatabase/libsql-client-go/libsql"

	// Import the pure-Go SQLite driver for local files and ":memory:".
	_ "modernc.org/sqlite"
)

// remoteSchemes are URL prefixes served by the libSQL driver.
var remoteSchemes = []string{"libsql://", "https://", "http://", "wss://", "ws://"}

// DriverFor returns the database/sql driver name for dbURL: "libsql" for
// remote Turso/libSQL URLs, "sqlite" for local files and ":memory:".
func DriverFor(dbURL string) string {
	for _, s := range remoteSchemes {
		if strings.HasPrefix(dbURL, s) {
			return "libsql"
		}
	}
	return "sqlite"
}

// Connect opens a database connection and verifies it with a ping.
//
// Supported URL forms:
//
//	Local file:   "file:path/to/memoire.db" or "memoire.db"
//	In memory:    ":memory:"
//	Remote Turso: "libsql://[db-name].turso.io?authToken=[token]"
func Connect(ctx context.Context, dbURL string) (*sql.DB, error) {
	if dbURL == "" {
		return nil, fmt.Errorf("database URL must not be empty")
	}

	driver := DriverFor(dbURL)
	db, err := sql.Open(driver, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if driver == "sqlite" {
		// One connection keeps ":memory:" databases shared and avoids SQLITE_BUSY on files.
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}
