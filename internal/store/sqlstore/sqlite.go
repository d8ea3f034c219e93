package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// DefaultSQLitePath is used when no database path is configured.
const DefaultSQLitePath = "tasks.db"

var sqliteDialect = dialect{
	name:   "sqlite",
	driver: "sqlite",
	createTable: `CREATE TABLE IF NOT EXISTS tasks (
		position INTEGER PRIMARY KEY AUTOINCREMENT,
		entryid TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		completed INTEGER NOT NULL DEFAULT 0,
		image_url TEXT NOT NULL DEFAULT ''
	)`,
}

// OpenSQLite opens (creating if needed) a SQLite database at path. The pool
// is limited to one connection so writers never contend for the file lock
// and ":memory:" databases stay a single database.
func OpenSQLite(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open(sqliteDialect.driver, path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	return newStore(ctx, db, sqliteDialect)
}
