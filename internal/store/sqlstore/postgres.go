package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// DefaultPostgresDSN is used when no DSN is configured.
const DefaultPostgresDSN = "postgres://localhost/tasks?sslmode=disable"

var postgresDialect = dialect{
	name:     "postgres",
	driver:   "pgx",
	numbered: true,
	createTable: `CREATE TABLE IF NOT EXISTS tasks (
		position BIGSERIAL PRIMARY KEY,
		entryid TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		completed BOOLEAN NOT NULL DEFAULT FALSE,
		image_url TEXT NOT NULL DEFAULT ''
	)`,
}

// OpenPostgres connects to Postgres, verifies the connection and ensures the
// tasks table exists.
func OpenPostgres(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = DefaultPostgresDSN
	}
	db, err := sql.Open(postgresDialect.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return newStore(ctx, db, postgresDialect)
}
