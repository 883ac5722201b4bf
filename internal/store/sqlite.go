package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// schemaVersion is bumped whenever a collection is added. Migrations are
// additive only: a newer binary must never drop or rewrite data written by an
// older one.
const schemaVersion = 1

const schema = `
CREATE TABLE IF NOT EXISTS schema_info (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	version INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_entries (
	collection TEXT NOT NULL,
	key TEXT NOT NULL,
	value BLOB NOT NULL,
	PRIMARY KEY (collection, key)
);
CREATE TABLE IF NOT EXISTS queue_entries (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	collection TEXT NOT NULL,
	value BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_queue_collection ON queue_entries(collection, id);
`

// SQLiteStore is the default durable backend: a single local database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path and provisions any
// missing collections. Opening is idempotent.
func OpenSQLite(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Single writer: the engine serializes writes per collection anyway and
	// modernc/sqlite handles concurrency poorly with multiple conns.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: apply schema: %v", ErrStoreUnavailable, err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStoreUnavailable, err)
	}

	return &SQLiteStore{db: db}, nil
}

// migrate records the schema version and applies additive upgrades for
// databases written by older binaries.
func migrate(db *sql.DB) error {
	var current int
	err := db.QueryRow(`SELECT version FROM schema_info WHERE id = 1`).Scan(&current)
	if err == sql.ErrNoRows {
		_, err = db.Exec(`INSERT INTO schema_info (id, version) VALUES (1, ?)`, schemaVersion)
		return err
	}
	if err != nil {
		return err
	}
	if current < schemaVersion {
		// Future versions add CREATE TABLE statements here, guarded by
		// the version they were introduced in. Existing tables are left
		// untouched.
		_, err = db.Exec(`UPDATE schema_info SET version = ? WHERE id = 1`, schemaVersion)
		return err
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, collection, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM cache_entries WHERE collection = ? AND key = ?`,
		collection, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ioErr("get", collection, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, collection, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cache_entries (collection, key, value) VALUES (?, ?, ?)
		 ON CONFLICT (collection, key) DO UPDATE SET value = excluded.value`,
		collection, key, value,
	)
	return ioErr("put", collection, err)
}

func (s *SQLiteStore) Delete(ctx context.Context, collection, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE collection = ? AND key = ?`,
		collection, key,
	)
	return ioErr("delete", collection, err)
}

func (s *SQLiteStore) Clear(ctx context.Context, collection string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE collection = ?`, collection,
	); err != nil {
		return ioErr("clear", collection, err)
	}
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE collection = ?`, collection,
	)
	return ioErr("clear", collection, err)
}

func (s *SQLiteStore) Count(ctx context.Context, collection string) (int, error) {
	var kv, q int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries WHERE collection = ?`, collection,
	).Scan(&kv); err != nil {
		return 0, ioErr("count", collection, err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM queue_entries WHERE collection = ?`, collection,
	).Scan(&q); err != nil {
		return 0, ioErr("count", collection, err)
	}
	return kv + q, nil
}

func (s *SQLiteStore) Append(ctx context.Context, collection string, value []byte) (uint64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_entries (collection, value) VALUES (?, ?)`,
		collection, value,
	)
	if err != nil {
		return 0, ioErr("append", collection, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, ioErr("append", collection, err)
	}
	return uint64(id), nil
}

func (s *SQLiteStore) ScanAll(ctx context.Context, collection string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, value FROM queue_entries WHERE collection = ? ORDER BY id ASC`,
		collection,
	)
	if err != nil {
		return nil, ioErr("scan", collection, err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Value); err != nil {
			return nil, ioErr("scan", collection, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, ioErr("scan", collection, err)
	}
	return out, nil
}

func (s *SQLiteStore) DeleteEntry(ctx context.Context, collection string, id uint64) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM queue_entries WHERE collection = ? AND id = ?`,
		collection, id,
	)
	return ioErr("delete_entry", collection, err)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
