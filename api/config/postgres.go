package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantline/strata/api/db"
)

// Postgres is the global session-store connection pool. Nil when DATABASE_URL
// is not set; session persistence is then disabled and chat still works.
var Postgres *pgxpool.Pool

// LoadPostgres opens the pool and runs pending migrations. A missing
// DATABASE_URL is not an error.
func LoadPostgres() error {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Printf("DATABASE_URL not set, session persistence disabled")
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return fmt.Errorf("failed to ping postgres: %w", err)
	}

	if err := db.RunPostgresMigrations(dsn); err != nil {
		pool.Close()
		return fmt.Errorf("failed to run postgres migrations: %w", err)
	}

	Postgres = pool
	log.Printf("Connected to Postgres successfully")
	return nil
}

// ClosePostgres closes the session-store pool.
func ClosePostgres() {
	if Postgres != nil {
		Postgres.Close()
	}
}
