package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

const historySchema = `
	CREATE TABLE IF NOT EXISTS prediction_history (
		id          TEXT PRIMARY KEY,
		operation   TEXT NOT NULL,
		request     TEXT NOT NULL,
		response    TEXT NOT NULL,
		success     BOOLEAN NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	)`

// Open connects to the journal database. Supported drivers are "postgres"
// and "sqlite3".
func Open(driver, dsn string) (*sqlx.DB, error) {
	switch driver {
	case "postgres", "sqlite3":
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sqlx.Connect(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}
	return db, nil
}

// EnsureSchema creates the history table if it does not exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, historySchema); err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}
