package db

import (
	"database/sql"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// RunPostgresMigrations applies pending session-store migrations.
func RunPostgresMigrations(dsn string) error {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return fmt.Errorf("failed to open postgres for migrations: %w", err)
	}
	defer conn.Close()

	goose.SetBaseFS(PostgresMigrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(conn, "postgres"); err != nil {
		return fmt.Errorf("failed to run postgres migrations: %w", err)
	}
	return nil
}

// ClickHouseMigrationConfig holds the connection settings for fact-table
// migrations.
type ClickHouseMigrationConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// RunClickHouseMigrations applies pending fact-table migrations.
func RunClickHouseMigrations(cfg ClickHouseMigrationConfig) error {
	conn := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
	})
	defer conn.Close()

	goose.SetBaseFS(ClickHouseMigrationsFS)
	if err := goose.SetDialect("clickhouse"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(conn, "clickhouse"); err != nil {
		return fmt.Errorf("failed to run clickhouse migrations: %w", err)
	}
	return nil
}
