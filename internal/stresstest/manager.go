package stresstest

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/studiowebux/swarmcli/internal/migrations"
	"github.com/studiowebux/swarmcli/internal/types"
)

// ErrRunNotFound is returned when a run id does not exist
var ErrRunNotFound = errors.New("run not found")

// Manager handles load test run persistence
type Manager struct {
	db *sql.DB
}

// NewManager creates a new run manager
func NewManager(dbPath string) (*Manager, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across calls
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Manager{db: db}, nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}

// SaveReport stores a finished test report with its endpoint and user
// results in a single transaction
func (m *Manager) SaveReport(report types.Report, source string) (*Run, error) {
	if source == "" {
		source = "local"
	}

	run := &Run{
		RunID:     uuid.NewString(),
		Name:      report.Name,
		Host:      report.Host,
		Source:    source,
		Status:    report.Status,
		UserCount: report.UserCount,
		StartedAt: report.StartedAt,
		EndedAt:   report.EndedAt,
		ElapsedMs: report.ElapsedMs,
		Results:   report.Results,
		Endpoints: report.Endpoints,
		Users:     report.Users,
	}

	tx, err := m.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	r := run.Results
	result, err := tx.Exec(`
		INSERT INTO load_test_runs
		(run_id, name, host, source, status, user_count, started_at, ended_at, elapsed_ms,
		 total_requests, total_failed, total_connection_errors, total_response_time_ms,
		 avg_response_time_ms, requests_per_second, failed_per_second)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Name, run.Host, run.Source, string(run.Status), run.UserCount, run.StartedAt, run.EndedAt, run.ElapsedMs,
		r.TotalRequests, r.TotalFailed, r.TotalConnectionErrors, r.TotalResponseTimeMs,
		r.AverageResponseTimeMs, r.RequestsPerSecond, r.FailedPerSecond)
	if err != nil {
		return nil, fmt.Errorf("failed to insert run: %w", err)
	}
	run.ID, err = result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	epStmt, err := tx.Prepare(`
		INSERT INTO load_test_endpoint_results
		(run_id, method, url, total_requests, total_failed, total_connection_errors, total_response_time_ms,
		 avg_response_time_ms, requests_per_second, failed_per_second)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer epStmt.Close()

	for _, ep := range run.Endpoints {
		s := ep.Results
		if _, err := epStmt.Exec(run.ID, string(ep.Method), ep.URL, s.TotalRequests, s.TotalFailed, s.TotalConnectionErrors,
			s.TotalResponseTimeMs, s.AverageResponseTimeMs, s.RequestsPerSecond, s.FailedPerSecond); err != nil {
			return nil, fmt.Errorf("failed to insert endpoint result: %w", err)
		}
	}

	userStmt, err := tx.Prepare(`
		INSERT INTO load_test_user_results
		(run_id, user_id, status, total_requests, total_failed, total_connection_errors, total_response_time_ms,
		 avg_response_time_ms, requests_per_second, failed_per_second)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer userStmt.Close()

	for _, u := range run.Users {
		s := u.Results
		if _, err := userStmt.Exec(run.ID, u.ID, string(u.Status), s.TotalRequests, s.TotalFailed, s.TotalConnectionErrors,
			s.TotalResponseTimeMs, s.AverageResponseTimeMs, s.RequestsPerSecond, s.FailedPerSecond); err != nil {
			return nil, fmt.Errorf("failed to insert user result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	return run, nil
}

const runColumns = `
	id, run_id, name, host, source, status, user_count, started_at, ended_at, elapsed_ms,
	total_requests, total_failed, total_connection_errors, total_response_time_ms,
	avg_response_time_ms, requests_per_second, failed_per_second, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	run := &Run{}
	var status string
	var startedAt, endedAt sql.NullTime

	err := row.Scan(&run.ID, &run.RunID, &run.Name, &run.Host, &run.Source, &status, &run.UserCount,
		&startedAt, &endedAt, &run.ElapsedMs,
		&run.Results.TotalRequests, &run.Results.TotalFailed, &run.Results.TotalConnectionErrors,
		&run.Results.TotalResponseTimeMs, &run.Results.AverageResponseTimeMs,
		&run.Results.RequestsPerSecond, &run.Results.FailedPerSecond, &run.CreatedAt)
	if err != nil {
		return nil, err
	}

	run.Status = types.Status(status)
	if startedAt.Valid {
		run.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		run.EndedAt = &endedAt.Time
	}
	return run, nil
}

// GetRun retrieves a run with its endpoint and user results
func (m *Manager) GetRun(id int64) (*Run, error) {
	run, err := scanRun(m.db.QueryRow(`SELECT `+runColumns+` FROM load_test_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	if run.Endpoints, err = m.getEndpointResults(id); err != nil {
		return nil, err
	}
	if run.Users, err = m.getUserResults(id); err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first, without their children
func (m *Manager) ListRuns(limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM load_test_runs ORDER BY created_at DESC, id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := m.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// DeleteRun deletes a run and all its results
func (m *Manager) DeleteRun(id int64) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"load_test_endpoint_results", "load_test_user_results"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", id); err != nil {
			return fmt.Errorf("failed to delete from %s: %w", table, err)
		}
	}

	result, err := tx.Exec("DELETE FROM load_test_runs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}

	return tx.Commit()
}

func (m *Manager) getEndpointResults(runID int64) ([]types.EndpointReport, error) {
	rows, err := m.db.Query(`
		SELECT method, url, total_requests, total_failed, total_connection_errors, total_response_time_ms,
		       avg_response_time_ms, requests_per_second, failed_per_second
		FROM load_test_endpoint_results
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint results: %w", err)
	}
	defer rows.Close()

	var endpoints []types.EndpointReport
	for rows.Next() {
		var ep types.EndpointReport
		var method string
		s := &ep.Results
		if err := rows.Scan(&method, &ep.URL, &s.TotalRequests, &s.TotalFailed, &s.TotalConnectionErrors,
			&s.TotalResponseTimeMs, &s.AverageResponseTimeMs, &s.RequestsPerSecond, &s.FailedPerSecond); err != nil {
			return nil, fmt.Errorf("failed to scan endpoint result: %w", err)
		}
		ep.Method = types.Method(method)
		endpoints = append(endpoints, ep)
	}
	return endpoints, rows.Err()
}

func (m *Manager) getUserResults(runID int64) ([]types.UserReport, error) {
	rows, err := m.db.Query(`
		SELECT user_id, status, total_requests, total_failed, total_connection_errors, total_response_time_ms,
		       avg_response_time_ms, requests_per_second, failed_per_second
		FROM load_test_user_results
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user results: %w", err)
	}
	defer rows.Close()

	var users []types.UserReport
	for rows.Next() {
		var u types.UserReport
		var status string
		s := &u.Results
		if err := rows.Scan(&u.ID, &status, &s.TotalRequests, &s.TotalFailed, &s.TotalConnectionErrors,
			&s.TotalResponseTimeMs, &s.AverageResponseTimeMs, &s.RequestsPerSecond, &s.FailedPerSecond); err != nil {
			return nil, fmt.Errorf("failed to scan user result: %w", err)
		}
		u.Status = types.Status(status)
		users = append(users, u)
	}
	return users, rows.Err()
}
