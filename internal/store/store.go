package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

// Store is a key-addressed durable store for JSON documents. It holds
// the only durable state the service owns: subscription registry
// entries and project records.
type Store interface {
	// Get unmarshals the document at key into out. The bool reports
	// whether the key exists.
	Get(ctx context.Context, key string, out any) (bool, error)
	Put(ctx context.Context, key string, val any) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// SQLStore implements Store on database/sql, with either the embedded
// sqlite driver or a MySQL server behind it.
type SQLStore struct {
	db     *sql.DB
	upsert string
}

// Open opens the store and creates its schema if missing.
func Open(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var schema, upsert string
	switch driver {
	case "sqlite":
		schema = `CREATE TABLE IF NOT EXISTS entries (k TEXT PRIMARY KEY, v TEXT NOT NULL)`
		upsert = `INSERT INTO entries (k, v) VALUES (?, ?) ON CONFLICT(k) DO UPDATE SET v = excluded.v`
	case "mysql":
		schema = `CREATE TABLE IF NOT EXISTS entries (k VARCHAR(512) PRIMARY KEY, v TEXT NOT NULL)`
		upsert = `INSERT INTO entries (k, v) VALUES (?, ?) ON DUPLICATE KEY UPDATE v = VALUES(v)`
	default:
		return nil, fmt.Errorf("unsupported store driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	if driver == "sqlite" {
		if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set journal mode: %w", err)
		}
		if _, err := db.ExecContext(ctx, `PRAGMA busy_timeout = 5000`); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set busy timeout: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create store schema: %w", err)
	}

	return &SQLStore{db: db, upsert: upsert}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string, out any) (bool, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM entries WHERE k = ?`, key).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(doc), out); err != nil {
		return false, fmt.Errorf("failed to decode %q: %w", key, err)
	}
	return true, nil
}

func (s *SQLStore) Put(ctx context.Context, key string, val any) error {
	doc, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("failed to encode %q: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, s.upsert, key, string(doc)); err != nil {
		return fmt.Errorf("failed to write %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE k = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
