// Package db embeds and runs the SQL migrations for both backing stores:
// Postgres for sessions, ClickHouse for the metric fact tables.
package db

import "embed"

//go:embed postgres/*.sql
var PostgresMigrationsFS embed.FS

//go:embed clickhouse/*.sql
var ClickHouseMigrationsFS embed.FS
