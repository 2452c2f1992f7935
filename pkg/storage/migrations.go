package storage

import (
	"database/sql"
	"fmt"
)

var sqliteMigrations = []string{
	// Migration 1: alert rules and history
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id                     TEXT PRIMARY KEY,
		name                   TEXT NOT NULL,
		description            TEXT NOT NULL DEFAULT '',
		metric_type            TEXT NOT NULL,
		threshold_value        REAL NOT NULL,
		threshold_operator     TEXT NOT NULL,
		check_interval_minutes INTEGER NOT NULL DEFAULT 5,
		cooldown_minutes       INTEGER NOT NULL DEFAULT 0,
		enabled                INTEGER NOT NULL DEFAULT 1,
		channels               TEXT NOT NULL DEFAULT '[]',
		last_triggered_at      DATETIME,
		created_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at             DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_rules_enabled ON alert_rules(enabled);

	CREATE TABLE IF NOT EXISTS alert_history (
		id              TEXT PRIMARY KEY,
		rule_id         TEXT NOT NULL,
		metric_type     TEXT NOT NULL,
		metric_value    REAL NOT NULL,
		threshold_value REAL NOT NULL,
		message         TEXT NOT NULL,
		channel         TEXT NOT NULL,
		status          TEXT NOT NULL CHECK(status IN ('pending', 'sent', 'failed')),
		sent_at         DATETIME,
		error_message   TEXT NOT NULL DEFAULT '',
		created_at      DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_history_rule ON alert_history(rule_id);
	CREATE INDEX IF NOT EXISTS idx_history_created ON alert_history(created_at);`,

	// Migration 2: analytics tables read by the metrics provider
	`CREATE TABLE IF NOT EXISTS performance_metrics (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL CHECK(kind IN ('api_response', 'page_load')),
		path        TEXT NOT NULL DEFAULT '',
		value_ms    REAL NOT NULL,
		is_error    INTEGER NOT NULL DEFAULT 0,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_perf_kind_time ON performance_metrics(kind, recorded_at);

	CREATE TABLE IF NOT EXISTS cost_records (
		id          TEXT PRIMARY KEY,
		service     TEXT NOT NULL,
		amount      REAL NOT NULL,
		recorded_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cost_time ON cost_records(recorded_at);

	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_created ON users(created_at);`,
}

var postgresMigrations = []string{
	// Migration 1: alert rules and history
	`CREATE TABLE IF NOT EXISTS alert_rules (
		id                     TEXT PRIMARY KEY,
		name                   TEXT NOT NULL,
		description            TEXT NOT NULL DEFAULT '',
		metric_type            TEXT NOT NULL,
		threshold_value        DOUBLE PRECISION NOT NULL,
		threshold_operator     TEXT NOT NULL,
		check_interval_minutes INTEGER NOT NULL DEFAULT 5,
		cooldown_minutes       INTEGER NOT NULL DEFAULT 0,
		enabled                BOOLEAN NOT NULL DEFAULT TRUE,
		channels               TEXT[] NOT NULL DEFAULT '{}',
		last_triggered_at      TIMESTAMPTZ,
		created_at             TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at             TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_rules_enabled ON alert_rules(enabled);

	CREATE TABLE IF NOT EXISTS alert_history (
		id              TEXT PRIMARY KEY,
		rule_id         TEXT NOT NULL,
		metric_type     TEXT NOT NULL,
		metric_value    DOUBLE PRECISION NOT NULL,
		threshold_value DOUBLE PRECISION NOT NULL,
		message         TEXT NOT NULL,
		channel         TEXT NOT NULL,
		status          TEXT NOT NULL CHECK(status IN ('pending', 'sent', 'failed')),
		sent_at         TIMESTAMPTZ,
		error_message   TEXT NOT NULL DEFAULT '',
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_history_rule ON alert_history(rule_id);
	CREATE INDEX IF NOT EXISTS idx_history_created ON alert_history(created_at);`,

	// Migration 2: analytics tables read by the metrics provider
	`CREATE TABLE IF NOT EXISTS performance_metrics (
		id          TEXT PRIMARY KEY,
		kind        TEXT NOT NULL CHECK(kind IN ('api_response', 'page_load')),
		path        TEXT NOT NULL DEFAULT '',
		value_ms    DOUBLE PRECISION NOT NULL,
		is_error    BOOLEAN NOT NULL DEFAULT FALSE,
		recorded_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_perf_kind_time ON performance_metrics(kind, recorded_at);

	CREATE TABLE IF NOT EXISTS cost_records (
		id          TEXT PRIMARY KEY,
		service     TEXT NOT NULL,
		amount      DOUBLE PRECISION NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cost_time ON cost_records(recorded_at);

	CREATE TABLE IF NOT EXISTS users (
		id         TEXT PRIMARY KEY,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_users_created ON users(created_at);`,
}

// runMigrations applies pending schema migrations. recordStmt inserts one
// version row using the dialect's placeholder syntax.
func runMigrations(db *sql.DB, migrations []string, recordStmt string) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create migration table: %w", err)
	}

	var currentVersion int
	row := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("check migration version: %w", err)
	}

	for i := currentVersion; i < len(migrations); i++ {
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("run migration %d: %w", i+1, err)
		}

		if _, err := tx.Exec(recordStmt, i+1); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %d: %w", i+1, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", i+1, err)
		}
	}

	return nil
}
