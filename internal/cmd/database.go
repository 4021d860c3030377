package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

// databaseDSN builds the Postgres connection URL from DB_* environment
// variables. The same DSN feeds the pgx pool and the outbox relay's
// pq.Listener.
func databaseDSN() string {
	port, err := strconv.Atoi(getEnv("DB_PORT", "5432"))
	if err != nil {
		port = 5432
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		getEnv("DB_USER", "postgres"),
		getEnv("DB_PASSWORD", "postgres"),
		getEnv("DB_HOST", "localhost"),
		port,
		getEnv("DB_NAME", "quizroom"),
		getEnv("DB_SSLMODE", "disable"),
	)
}

// setupDatabase opens the pgx pool used by the room store plus a database/sql
// handle for the outbox relay (pq.Listener needs lib/pq).
func setupDatabase(ctx context.Context) (*pgxpool.Pool, *sql.DB, error) {
	dsn := databaseDSN()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database, err := sql.Open("postgres", dsn)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to open database connection: %w", err)
	}
	if err := database.PingContext(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", getEnv("DB_HOST", "localhost")).
		Str("database", getEnv("DB_NAME", "quizroom")).
		Msg("connected to database")
	return pool, database, nil
}
