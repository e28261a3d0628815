// Package config owns the API server's external connections: ClickHouse for
// the metric facts, Postgres for session persistence. Both are loaded once
// at startup and shared as package globals, matching how the handlers use
// them.
package config

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// DB is the global ClickHouse connection pool. Nil when the server runs
// against the in-memory store (STRATA_STORE=mem).
var DB driver.Conn

// CHConfig holds the ClickHouse configuration.
type CHConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

var cfg CHConfig

// Database returns the configured database name.
func Database() string {
	return cfg.Database
}

// SetDatabase overrides the configured database name. Used by the test
// harness when swapping in a per-test database.
func SetDatabase(name string) {
	cfg.Database = name
}

// UseMemStore reports whether the server should serve from the in-memory
// mock store instead of ClickHouse.
func UseMemStore() bool {
	return os.Getenv("STRATA_STORE") == "mem"
}

// Load reads ClickHouse settings from the environment and opens the
// connection pool. It is a no-op in mem-store mode.
func Load() error {
	if UseMemStore() {
		log.Printf("STRATA_STORE=mem, skipping ClickHouse connection")
		return nil
	}

	cfg.Addr = os.Getenv("CLICKHOUSE_ADDR_TCP")
	if cfg.Addr == "" {
		cfg.Addr = "localhost:9000"
	}
	cfg.Database = os.Getenv("CLICKHOUSE_DATABASE")
	if cfg.Database == "" {
		cfg.Database = "default"
	}
	cfg.Username = os.Getenv("CLICKHOUSE_USERNAME")
	if cfg.Username == "" {
		cfg.Username = "default"
	}
	cfg.Password = os.Getenv("CLICKHOUSE_PASSWORD")
	secure := os.Getenv("CLICKHOUSE_SECURE") == "true"

	log.Printf("Connecting to ClickHouse: addr=%s, database=%s, username=%s, secure=%v", cfg.Addr, cfg.Database, cfg.Username, secure)

	opts := &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout:     5 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
	if secure {
		opts.TLS = &tls.Config{}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return fmt.Errorf("failed to create clickhouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	DB = conn
	log.Printf("Connected to ClickHouse successfully")
	return nil
}

// Close closes the ClickHouse connection pool.
func Close() error {
	if DB != nil {
		return DB.Close()
	}
	return nil
}
