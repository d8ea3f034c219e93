// Package sqlstore persists tasks in a relational database. The same
// queries serve SQLite (modernc.org/sqlite) and Postgres (pgx); dialects
// differ only in DDL and placeholder syntax.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/vyrodovalexey/taskcache/internal/model"
	"github.com/vyrodovalexey/taskcache/internal/store"
)

// Compile-time contract assertion.
var _ store.Store = (*Store)(nil)

type dialect struct {
	name        string
	driver      string
	createTable string
	numbered    bool // $1, $2 placeholders instead of ?
}

// Store implements store.Store on top of database/sql. Rows are ordered by
// an auto-incrementing position column so iteration follows first insertion.
type Store struct {
	db      *sql.DB
	dialect dialect
}

func newStore(ctx context.Context, db *sql.DB, d dialect) (*Store, error) {
	if _, err := db.ExecContext(ctx, d.createTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tasks table: %w", err)
	}
	return &Store{db: db, dialect: d}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect reports which database the store talks to.
func (s *Store) Dialect() string {
	return s.dialect.name
}

const selectColumns = `SELECT entryid, title, description, completed, image_url FROM tasks`

// List returns all tasks in insertion order.
func (s *Store) List(ctx context.Context) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	tasks := make([]model.Task, 0)
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.ImageURL); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

// Get retrieves a task by its ID.
func (s *Store) Get(ctx context.Context, id string) (model.Task, bool, error) {
	if id == "" {
		return model.Task{}, false, store.ErrInvalidID
	}

	var t model.Task
	err := s.db.QueryRowContext(ctx, s.rebind(selectColumns+` WHERE entryid = ?`), id).
		Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.ImageURL)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return model.Task{}, false, nil
	case err != nil:
		return model.Task{}, false, fmt.Errorf("get task: %w", err)
	}
	return t, true, nil
}

// Save upserts a task. Replacing a task keeps its original position.
func (s *Store) Save(ctx context.Context, task model.Task) error {
	if task.ID == "" {
		return store.ErrInvalidID
	}

	const upsert = `INSERT INTO tasks (entryid, title, description, completed, image_url)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (entryid) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			completed = excluded.completed,
			image_url = excluded.image_url`

	if _, err := s.db.ExecContext(ctx, s.rebind(upsert),
		task.ID, task.Title, task.Description, task.Completed, task.ImageURL,
	); err != nil {
		return fmt.Errorf("save task: %w", err)
	}
	return nil
}

// Delete removes a task by its ID; missing tasks are ignored.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return store.ErrInvalidID
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM tasks WHERE entryid = ?`), id); err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	return nil
}

// DeleteWhere removes every task matching the predicate inside a single
// transaction.
func (s *Store) DeleteWhere(ctx context.Context, match func(model.Task) bool) (removed int, retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	rows, err := tx.QueryContext(ctx, selectColumns+` ORDER BY position`)
	if err != nil {
		return 0, fmt.Errorf("select tasks: %w", err)
	}
	var ids []string
	for rows.Next() {
		var t model.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Completed, &t.ImageURL); err != nil {
			_ = rows.Close()
			return 0, fmt.Errorf("scan task: %w", err)
		}
		if match(t) {
			ids = append(ids, t.ID)
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return 0, fmt.Errorf("select tasks: %w", err)
	}
	_ = rows.Close()

	del := s.rebind(`DELETE FROM tasks WHERE entryid = ?`)
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, del, id); err != nil {
			return 0, fmt.Errorf("delete task %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return len(ids), nil
}

// DeleteAll removes every task.
func (s *Store) DeleteAll(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM tasks`); err != nil {
		return fmt.Errorf("delete all tasks: %w", err)
	}
	return nil
}

// rebind rewrites ? placeholders for dialects that number their parameters.
func (s *Store) rebind(query string) string {
	if !s.dialect.numbered {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
