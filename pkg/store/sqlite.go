package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/docker/agent-relay/pkg/sqliteutil"
)

// SQLiteStore is a Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the store at path. A database whose migrations fail
// is moved aside and replaced with a fresh one.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	store, err := openAndMigrate(ctx, path)
	if err == nil {
		return store, nil
	}
	if sqliteutil.IsCantOpenError(err) || sqliteutil.IsBusyError(err) {
		return nil, err
	}

	slog.Warn("Failed to open store, attempting recovery", "path", path, "error", err)
	if backupErr := backupDatabase(path); backupErr != nil {
		return nil, fmt.Errorf("migration failed: %w (backup also failed: %w)", err, backupErr)
	}

	store, err = openAndMigrate(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("migration failed even after database reset: %w", err)
	}
	slog.Info("Recovered store with a fresh database", "path", path)
	return store, nil
}

func openAndMigrate(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sqliteutil.OpenDB(path)
	if err != nil {
		return nil, err
	}

	if err := NewMigrationManager(db).InitializeMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

// backupDatabase moves the database file and its WAL artifacts to path.bak.
func backupDatabase(path string) error {
	backupPath := path + ".bak"
	slog.Info("Backing up database", "from", path, "to", backupPath)

	if err := os.Rename(path, backupPath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("moving database file: %w", err)
	}

	for _, suffix := range []string{"-wal", "-shm"} {
		if err := os.Rename(path+suffix, backupPath+suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to move database file", "file", path+suffix, "error", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", key, err)
	}
	return []byte(value), nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	if key == "" {
		return ErrEmptyKey
	}

	id, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generating row id: %w", err)
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO kv (id, key, value, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		id.String(), key, string(value), now, now)
	if err != nil {
		return fmt.Errorf("writing %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting %q: %w", key, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT key, value, updated_at FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key",
		prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("listing %q: %w", prefix, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			entry     Entry
			value     string
			updatedAt string
		)
		if err := rows.Scan(&entry.Key, &value, &updatedAt); err != nil {
			return nil, fmt.Errorf("listing %q: %w", prefix, err)
		}
		entry.Value = []byte(value)
		entry.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
		if err != nil {
			return nil, fmt.Errorf("parsing update time of %q: %w", entry.Key, err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
