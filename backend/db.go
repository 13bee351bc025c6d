package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/charlhhhh/Openhouse/internal/dbschema"
)

// initDB connects to Postgres and makes sure the schema exists.
func initDB(ctx context.Context, connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("cannot reach the database: %w", err)
	}
	if err := dbschema.Apply(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("database connection established")
	return db, nil
}
