package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Migration is one step of the schema history.
type Migration struct {
	ID          int
	Name        string
	Description string
	UpSQL       string
	AppliedAt   time.Time
}

// MigrationManager applies pending migrations in order, recording each one
// in the migrations table.
type MigrationManager struct {
	db *sql.DB
}

func NewMigrationManager(db *sql.DB) *MigrationManager {
	return &MigrationManager{db: db}
}

// InitializeMigrations creates the migrations table and runs pending migrations
func (m *MigrationManager) InitializeMigrations(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS migrations (
			id INTEGER PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			description TEXT,
			applied_at TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	if err := m.RunPendingMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run pending migrations: %w", err)
	}
	return nil
}

func (m *MigrationManager) RunPendingMigrations(ctx context.Context) error {
	for _, migration := range allMigrations() {
		var count int
		if err := m.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM migrations WHERE name = ?", migration.Name).Scan(&count); err != nil {
			return fmt.Errorf("failed to check if migration %s is applied: %w", migration.Name, err)
		}
		if count > 0 {
			continue
		}

		if err := m.apply(ctx, migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
		}
	}
	return nil
}

func (m *MigrationManager) apply(ctx context.Context, migration Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, migration.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO migrations (id, name, description, applied_at) VALUES (?, ?, ?, ?)",
		migration.ID, migration.Name, migration.Description, time.Now().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}

// AppliedMigrations returns the migrations recorded in the database.
func (m *MigrationManager) AppliedMigrations(ctx context.Context) ([]Migration, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT id, name, description, applied_at FROM migrations ORDER BY id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var migrations []Migration
	for rows.Next() {
		var (
			migration Migration
			appliedAt string
		)
		if err := rows.Scan(&migration.ID, &migration.Name, &migration.Description, &appliedAt); err != nil {
			return nil, err
		}
		migration.AppliedAt, err = time.Parse(time.RFC3339, appliedAt)
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, migration)
	}
	return migrations, rows.Err()
}

func allMigrations() []Migration {
	return []Migration{
		{
			ID:          1,
			Name:        "001_create_kv",
			Description: "Create the key-value table",
			UpSQL: `CREATE TABLE IF NOT EXISTS kv (
				id TEXT PRIMARY KEY,
				key TEXT UNIQUE NOT NULL,
				value TEXT NOT NULL,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
		},
		{
			ID:          2,
			Name:        "002_index_kv_updated_at",
			Description: "Index key-value entries by update time",
			UpSQL:       `CREATE INDEX IF NOT EXISTS idx_kv_updated_at ON kv (updated_at)`,
		},
	}
}
