package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/calcutta/console/internal/config"
)

// The DDL and queries stay within the subset MySQL and SQLite share.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS view_preferences (
		user_id BIGINT NOT NULL,
		view_name VARCHAR(64) NOT NULL,
		payload TEXT NOT NULL,
		updated_at BIGINT NOT NULL,
		PRIMARY KEY (user_id, view_name)
	)`,
	`CREATE TABLE IF NOT EXISTS client_errors (
		id VARCHAR(36) NOT NULL PRIMARY KEY,
		user_id BIGINT NOT NULL,
		message TEXT NOT NULL,
		stack TEXT NOT NULL,
		component_stack TEXT NOT NULL,
		url TEXT NOT NULL,
		user_agent TEXT NOT NULL,
		created_at BIGINT NOT NULL
	)`,
}

// Open connects to the configured store and applies migrations.
func Open(ctx context.Context, cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open(cfg.Driver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Driver, err)
	}
	if cfg.Driver == "sqlite" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(10)
		db.SetConnMaxLifetime(5 * time.Minute)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.Driver, err)
	}
	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates the console tables if they are missing.
func Migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
