package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"SupportChat/internal/session"
)

const createLocalStorageTable = `
	CREATE TABLE IF NOT EXISTS local_storage (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME
	);`

// SQLiteStore keeps the log as one row of a key/value table
type SQLiteStore struct {
	db  *sql.DB
	key string
}

// NewSQLiteStore opens (or creates) the database at path
func NewSQLiteStore(path, key string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases alive and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(createLocalStorageTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create local_storage table: %w", err)
	}

	return &SQLiteStore{db: db, key: key}, nil
}

func (s *SQLiteStore) Load(ctx context.Context) (session.Log, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM local_storage WHERE key = ?", s.key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return session.Log{}, nil
		}
		return nil, fmt.Errorf("failed to load conversation %s: %w", s.key, err)
	}
	return decodeLog([]byte(value))
}

func (s *SQLiteStore) Save(ctx context.Context, log session.Log) error {
	raw, err := encodeLog(log)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		"INSERT OR REPLACE INTO local_storage (key, value, updated_at) VALUES (?, ?, ?)",
		s.key, string(raw), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", s.key, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Remove(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM local_storage WHERE key = ?", s.key); err != nil {
		return fmt.Errorf("failed to remove conversation %s: %w", s.key, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
