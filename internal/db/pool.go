package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// ErrNoDatabase is returned by every query when Init did not succeed
var ErrNoDatabase = errors.New("database not available")

// Pool is the global database connection pool
var Pool *pgxpool.Pool

// Init initializes the database connection pool
func Init(log *zap.Logger) error {
	databaseURL := DatabaseURL()
	if databaseURL == "" {
		// Uploads and MinIO still work without a database
		log.Info("No database configuration found, stored documents disabled")
		return fmt.Errorf("%w: no database configuration", ErrNoDatabase)
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return fmt.Errorf("failed to parse database URL: %w", err)
	}

	// Connection pool settings optimized for PgBouncer
	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	Pool = pool
	log.Info("Database connection pool initialized",
		zap.Int32("max_conns", config.MaxConns),
	)
	return nil
}

// DatabaseURL returns DATABASE_URL, or a URL built from DB_HOST, DB_PORT,
// DB_USER, DB_PASSWORD and DB_NAME. Empty when neither is configured.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := os.Getenv("DB_HOST")
	port := os.Getenv("DB_PORT")
	user := os.Getenv("DB_USER")
	password := os.Getenv("DB_PASSWORD")
	dbname := os.Getenv("DB_NAME")

	if host == "" || user == "" || dbname == "" {
		return ""
	}
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf("postgresql://%s:%s@%s:%s/%s?sslmode=disable",
		user, password, host, port, dbname)
}

// Close closes the database connection pool
func Close() {
	if Pool != nil {
		Pool.Close()
		Pool = nil
	}
}

// Available reports whether Init succeeded
func Available() bool {
	return Pool != nil
}

// Ping checks the pool for the health endpoint
func Ping(ctx context.Context) error {
	if Pool == nil {
		return ErrNoDatabase
	}
	return Pool.Ping(ctx)
}

// GetSchemaForEmpresa returns the schema name for a given empresa alias.
// Aliases with characters outside [a-z0-9_] are rejected.
func GetSchemaForEmpresa(alias string) (string, error) {
	alias = strings.ToLower(strings.TrimSpace(alias))
	if alias == "" {
		return "public", nil
	}
	for _, r := range alias {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_') {
			return "", fmt.Errorf("invalid empresa alias %q", alias)
		}
	}
	return "emp_" + alias, nil
}
