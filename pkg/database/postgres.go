package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"todo-system/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
)

// DB is the process wide connection pool, set by Connect.
var DB *sql.DB

// Connect opens the Postgres pool through the configured driver ("pgx" or
// lib/pq's "postgres") and verifies it with a ping.
func Connect(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	driver := cfg.DBDriver
	if driver == "" {
		driver = "pgx"
	}
	db, err := sql.Open(driver, cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Connection pool settings
	db.SetMaxIdleConns(10)
	db.SetMaxOpenConns(100)
	db.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	DB = db
	return db, nil
}

// HealthCheck pings the shared pool.
func HealthCheck(ctx context.Context) error {
	if DB == nil {
		return errors.New("database not initialized")
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return DB.PingContext(ctx)
}

// Close releases the shared pool.
func Close() error {
	if DB == nil {
		return nil
	}
	err := DB.Close()
	DB = nil
	return err
}
