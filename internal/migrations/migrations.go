package migrations

import (
	"database/sql"
	"fmt"
)

// Migration represents a single database migration
type Migration struct {
	Version int
	Name    string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: 1,
		Name:    "Add lookup indices for run history",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_load_runs_created_at ON load_test_runs(created_at DESC);
			CREATE INDEX IF NOT EXISTS idx_load_runs_status ON load_test_runs(status);
			CREATE INDEX IF NOT EXISTS idx_load_runs_source ON load_test_runs(source);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_load_runs_created_at;
			DROP INDEX IF EXISTS idx_load_runs_status;
			DROP INDEX IF EXISTS idx_load_runs_source;
		`,
	},
	{
		Version: 2,
		Name:    "Add composite indices for per-run result lookups",
		Up: `
			CREATE INDEX IF NOT EXISTS idx_load_endpoint_results_run ON load_test_endpoint_results(run_id, method, url);
			CREATE INDEX IF NOT EXISTS idx_load_user_results_run ON load_test_user_results(run_id, user_id);
		`,
		Down: `
			DROP INDEX IF EXISTS idx_load_endpoint_results_run;
			DROP INDEX IF EXISTS idx_load_user_results_run;
		`,
	},
}

// InitSchema creates all tables required across all modules
// This must be called before running migrations to ensure all tables exist
func InitSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS load_test_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL DEFAULT '',
		host TEXT NOT NULL,
		source TEXT NOT NULL DEFAULT 'local',
		status TEXT NOT NULL,
		user_count INTEGER NOT NULL DEFAULT 0,
		started_at DATETIME,
		ended_at DATETIME,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		total_requests INTEGER NOT NULL DEFAULT 0,
		total_failed INTEGER NOT NULL DEFAULT 0,
		total_connection_errors INTEGER NOT NULL DEFAULT 0,
		total_response_time_ms INTEGER NOT NULL DEFAULT 0,
		avg_response_time_ms REAL NOT NULL DEFAULT 0,
		requests_per_second REAL NOT NULL DEFAULT 0,
		failed_per_second REAL NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS load_test_endpoint_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		method TEXT NOT NULL,
		url TEXT NOT NULL,
		total_requests INTEGER NOT NULL DEFAULT 0,
		total_failed INTEGER NOT NULL DEFAULT 0,
		total_connection_errors INTEGER NOT NULL DEFAULT 0,
		total_response_time_ms INTEGER NOT NULL DEFAULT 0,
		avg_response_time_ms REAL NOT NULL DEFAULT 0,
		requests_per_second REAL NOT NULL DEFAULT 0,
		failed_per_second REAL NOT NULL DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES load_test_runs(id) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS load_test_user_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id INTEGER NOT NULL,
		user_id TEXT NOT NULL,
		status TEXT NOT NULL,
		total_requests INTEGER NOT NULL DEFAULT 0,
		total_failed INTEGER NOT NULL DEFAULT 0,
		total_connection_errors INTEGER NOT NULL DEFAULT 0,
		total_response_time_ms INTEGER NOT NULL DEFAULT 0,
		avg_response_time_ms REAL NOT NULL DEFAULT 0,
		requests_per_second REAL NOT NULL DEFAULT 0,
		failed_per_second REAL NOT NULL DEFAULT 0,
		FOREIGN KEY (run_id) REFERENCES load_test_runs(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_load_endpoint_results_run_id ON load_test_endpoint_results(run_id);
	CREATE INDEX IF NOT EXISTS idx_load_user_results_run_id ON load_test_user_results(run_id);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Run executes all pending migrations on the database
func Run(db *sql.DB) error {
	// Initialize schema first to ensure all tables exist
	if err := InitSchema(db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	currentVersion, err := GetCurrentVersion(db)
	if err != nil {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}

	for _, migration := range AllMigrations {
		if migration.Version <= currentVersion {
			continue
		}

		if _, err := db.Exec(migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %d (%s): %w", migration.Version, migration.Name, err)
		}

		_, err = db.Exec(
			"INSERT INTO schema_migrations (version, name) VALUES (?, ?)",
			migration.Version,
			migration.Name,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", migration.Version, err)
		}
	}

	return nil
}

// GetCurrentVersion returns the current database schema version
func GetCurrentVersion(db *sql.DB) (int, error) {
	var version int
	err := db.QueryRow(`
		SELECT COALESCE(MAX(version), 0)
		FROM schema_migrations
	`).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, err
	}
	return version, nil
}
