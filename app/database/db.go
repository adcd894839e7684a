package database

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
)

var ErrNotFound = errors.New("not found")

// sqlite extended result code for a failed FOREIGN KEY constraint
const sqliteConstraintForeignKey = 787

type DB struct {
	*sqlx.DB
}

// Open opens (creating if needed) the SQLite database at path with foreign keys enforced.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate", path)
	dbx, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := dbx.Ping(); err != nil {
		dbx.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Debug("Database opened", "path", path)

	return &DB{DB: dbx}, nil
}

func notFound(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func foreignKeyViolation(err error) bool {
	var sqliteErr *sqlite.Error
	return errors.As(err, &sqliteErr) && sqliteErr.Code() == sqliteConstraintForeignKey
}
