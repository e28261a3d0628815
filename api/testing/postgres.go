package apitesting

import (
	"context"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/quantline/strata/api/config"
	"github.com/quantline/strata/api/db"
)

// PostgresDB represents a Postgres test container.
type PostgresDB struct {
	log       *slog.Logger
	dsn       string
	container *tcpg.PostgresContainer
}

// DSN returns the connection string for the container.
func (d *PostgresDB) DSN() string {
	return d.dsn
}

// Close terminates the Postgres container.
func (d *PostgresDB) Close() {
	terminateCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.container.Terminate(terminateCtx); err != nil {
		d.log.Error("failed to terminate Postgres container", "error", err)
	}
}

// NewPostgresDB creates a new Postgres testcontainer.
func NewPostgresDB(ctx context.Context, log *slog.Logger) (*PostgresDB, error) {
	var container *tcpg.PostgresContainer
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		container, err = tcpg.Run(ctx,
			"postgres:16-alpine",
			tcpg.WithDatabase("test"),
			tcpg.WithUsername("test"),
			tcpg.WithPassword("test"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(30*time.Second)),
		)
		if err != nil {
			lastErr = err
			if isRetryableContainerStartErr(err) && attempt < 3 {
				time.Sleep(time.Duration(attempt) * 750 * time.Millisecond)
				continue
			}
			return nil, fmt.Errorf("failed to start Postgres container after retries: %w", lastErr)
		}
		break
	}
	if container == nil {
		return nil, fmt.Errorf("failed to start Postgres container after retries: %w", lastErr)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, fmt.Errorf("failed to get Postgres connection string: %w", err)
	}

	return &PostgresDB{log: log, dsn: dsn, container: container}, nil
}

// SetupTestPostgres applies the session migrations and swaps the pool into
// config.Postgres. The previous global state is restored on cleanup.
func SetupTestPostgres(t *testing.T, pgdb *PostgresDB) {
	ctx := t.Context()

	require.NoError(t, db.RunPostgresMigrations(pgdb.dsn), "failed to run Postgres migrations")

	pool, err := pgxpool.New(ctx, pgdb.dsn)
	require.NoError(t, err, "failed to create Postgres pool")
	require.NoError(t, pool.Ping(ctx), "failed to ping Postgres")

	oldPool := config.Postgres
	config.Postgres = pool

	t.Cleanup(func() {
		pool.Close()
		config.Postgres = oldPool
	})
}
