package db

import (
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Driver string // "sqlite" or "postgres"
	DSN    string // file path for sqlite, connection URL for postgres
}

// Open connects to the configured database and applies migrations.
func Open(cfg Config) (*sqlx.DB, error) {
	var conn *sqlx.DB
	var err error

	switch cfg.Driver {
	case DriverSQLite:
		conn, err = sqlx.Connect("sqlite3", cfg.DSN)
		if err == nil {
			// SQLite serializes writers; a single connection avoids
			// SQLITE_BUSY under concurrent requests.
			conn.SetMaxOpenConns(1)
			conn.SetMaxIdleConns(1)
		}
	case DriverPostgres:
		conn, err = sqlx.Connect("pgx", cfg.DSN)
		if err == nil {
			conn.SetMaxOpenConns(25)
			conn.SetMaxIdleConns(5)
		}
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	if err := migrate(conn, cfg.Driver); err != nil {
		conn.Close()
		return nil, err
	}

	return conn, nil
}

type migration struct {
	version string
	sql     string
}

func migrations(driver string) []migration {
	timestamp := "TIMESTAMP"
	if driver == DriverPostgres {
		timestamp = "TIMESTAMPTZ"
	}

	return []migration{
		{
			version: "001_print_jobs",
			sql: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS print_jobs (
					id TEXT PRIMARY KEY,
					organization_id TEXT NOT NULL,
					order_id TEXT NOT NULL,
					call_id TEXT NOT NULL DEFAULT '',
					status TEXT NOT NULL,
					attempts INTEGER NOT NULL DEFAULT 0,
					last_error TEXT,
					printer_target TEXT NOT NULL DEFAULT '',
					content TEXT NOT NULL DEFAULT '',
					created_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP,
					updated_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP
				);
				CREATE UNIQUE INDEX IF NOT EXISTS idx_print_jobs_org_order
					ON print_jobs (organization_id, order_id);
				CREATE INDEX IF NOT EXISTS idx_print_jobs_org_status_created
					ON print_jobs (organization_id, status, created_at);
			`, timestamp, timestamp),
		},
		{
			version: "002_orders",
			sql: fmt.Sprintf(`
				CREATE TABLE IF NOT EXISTS orders (
					organization_id TEXT NOT NULL,
					order_id TEXT NOT NULL,
					payload TEXT NOT NULL,
					created_at %s NOT NULL DEFAULT CURRENT_TIMESTAMP,
					PRIMARY KEY (organization_id, order_id)
				);
			`, timestamp),
		},
	}
}

func migrate(conn *sqlx.DB, driver string) error {
	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := conn.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[version] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range migrations(driver) {
		if applied[m.version] {
			continue
		}

		tx, err := conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin transaction for migration %s: %w", m.version, err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %s: %w", m.version, err)
		}

		if _, err := tx.Exec(conn.Rebind("INSERT INTO schema_migrations (version) VALUES (?)"), m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %s: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %s: %w", m.version, err)
		}
	}

	return nil
}
