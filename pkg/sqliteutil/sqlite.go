package sqliteutil

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// pragmas are applied to every connection: wait on locks instead of failing,
// write-ahead logging for concurrent readers, and enforced foreign keys.
const pragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"

// OpenDB opens (and creates if needed) the SQLite database at path. Writes
// are serialized through a single connection.
func OpenDB(path string) (*sql.DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("cannot create database directory %q: %w", dir, err)
	}

	db, err := sql.Open("sqlite", path+"?"+pragmas)
	if err != nil {
		return nil, wrapOpenError(path, err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, wrapOpenError(path, err)
	}
	return db, nil
}

func wrapOpenError(path string, err error) error {
	if IsCantOpenError(err) {
		return DiagnoseDBOpenError(path, err)
	}
	return fmt.Errorf("opening database %q: %w", path, err)
}

// IsCantOpenError reports whether err is a SQLite CANTOPEN error.
func IsCantOpenError(err error) bool {
	return hasCode(err, sqlite3.SQLITE_CANTOPEN)
}

// IsBusyError reports whether err means the database stayed locked past the
// busy timeout.
func IsBusyError(err error) bool {
	return hasCode(err, sqlite3.SQLITE_BUSY)
}

func hasCode(err error, code int) bool {
	sqliteErr, ok := errors.AsType[*sqlite.Error](err)
	return ok && sqliteErr.Code()&0xff == code
}

// DiagnoseDBOpenError explains why the database file at path could not be
// opened or created.
func DiagnoseDBOpenError(path string, originalErr error) error {
	dir := filepath.Dir(path)

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("cannot create database at %q: directory %q does not exist", path, dir)
	case err != nil:
		return fmt.Errorf("cannot create database at %q: %w", path, err)
	case !info.IsDir():
		return fmt.Errorf("cannot create database at %q: %q is not a directory", path, dir)
	default:
		return fmt.Errorf("cannot create database at %q: permission denied or file cannot be created in %q: %w", path, dir, originalErr)
	}
}
