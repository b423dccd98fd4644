package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/snl-sec/snlscan/internal/model"
)

// JobStore provides SQLite-based persistence for scan jobs.
// It manages connection pooling and provides methods for CRUD operations.
//
// Design decision: We use a single database file for all jobs rather than
// one file per scan. This keeps history queries and backup/restore
// operations simple.
type JobStore struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures JobStore behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging for better concurrent performance.
	// This is recommended for most use cases.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a JobStore at the specified path.
// If CreateIfNotExists is true, the directory and database file are created.
// If CreateIfNotExists is false and the database doesn't exist, an error is returned.
func Open(dbDir string, opts Options) (*JobStore, error) {
	dbPath := filepath.Join(dbDir, "snlscan.db")

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("database not found at %s (use CreateIfNotExists option to create)", dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else {
		if err := os.MkdirAll(dbDir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// modernc.org/sqlite connection string: mode=rw prevents creating new
	// files, mode=rwc allows creation.
	var dsn string
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	} else {
		dsn = dbPath + "?mode=rw"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &JobStore{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := store.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *JobStore) Close() error {
	return s.db.Close()
}

// createTables creates the database schema if it doesn't exist.
func (s *JobStore) createTables() error {
	schema := `
	-- Jobs store one row per scan, upserted on every lifecycle transition.
	-- The attached result is stored as JSON: the schema never needs a
	-- migration when the result shape evolves.
	CREATE TABLE IF NOT EXISTS jobs (
		scan_id TEXT PRIMARY KEY,
		target TEXT NOT NULL,
		mode TEXT NOT NULL,
		owner_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		submitted_at TEXT NOT NULL,
		started_at TEXT,
		completed_at TEXT,
		result_json TEXT,
		error TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_owner ON jobs(owner_id);
	CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	CREATE INDEX IF NOT EXISTS idx_jobs_submitted ON jobs(submitted_at);

	-- Findings are append-only rows for history queries across scans.
	CREATE TABLE IF NOT EXISTS findings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		finding_id TEXT NOT NULL,
		name TEXT NOT NULL,
		severity TEXT NOT NULL,
		url TEXT,
		score REAL DEFAULT 0,
		timestamp DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_findings_scan ON findings(scan_id);
	CREATE INDEX IF NOT EXISTS idx_findings_severity ON findings(severity);
	`

	_, err := s.db.ExecContext(context.Background(), schema)
	return err
}

// SaveJob inserts or updates a job snapshot keyed by scan id.
func (s *JobStore) SaveJob(ctx context.Context, job *model.ScanJob) error {
	var resultJSON sql.NullString
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("failed to serialize result: %w", err)
		}
		resultJSON = sql.NullString{String: string(data), Valid: true}
	}

	query := `
	INSERT INTO jobs (scan_id, target, mode, owner_id, status, submitted_at, started_at, completed_at, result_json, error)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(scan_id) DO UPDATE SET
		status = excluded.status,
		started_at = excluded.started_at,
		completed_at = excluded.completed_at,
		result_json = excluded.result_json,
		error = excluded.error
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ScanID,
		job.Target,
		string(job.Mode),
		job.OwnerID,
		string(job.Status),
		job.SubmittedAt.UTC().Format(time.RFC3339Nano),
		formatOptionalTime(job.StartedAt),
		formatOptionalTime(job.CompletedAt),
		resultJSON,
		job.Error,
	)
	if err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}

	return nil
}

// GetJob retrieves a job snapshot by scan id.
// Returns nil without error when no snapshot exists.
func (s *JobStore) GetJob(ctx context.Context, scanID string) (*model.ScanJob, error) {
	query := `
	SELECT scan_id, target, mode, owner_id, status, submitted_at, started_at, completed_at, result_json, error
	FROM jobs
	WHERE scan_id = ?
	`

	job, err := scanJobRow(s.db.QueryRowContext(ctx, query, scanID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListJobs retrieves job snapshots, newest first. When ownerID is
// non-empty, only that owner's jobs are returned.
func (s *JobStore) ListJobs(ctx context.Context, ownerID string) ([]*model.ScanJob, error) {
	query := `
	SELECT scan_id, target, mode, owner_id, status, submitted_at, started_at, completed_at, result_json, error
	FROM jobs
	WHERE 1=1
	`
	args := make([]any, 0)

	if ownerID != "" {
		query += " AND owner_id = ?"
		args = append(args, ownerID)
	}

	query += " ORDER BY submitted_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*model.ScanJob
	for rows.Next() {
		job, err := scanJobRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

// DeleteJob removes a job snapshot and its finding rows.
func (s *JobStore) DeleteJob(ctx context.Context, scanID string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM findings WHERE scan_id = ?", scanID); err != nil {
		return fmt.Errorf("failed to delete findings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE scan_id = ?", scanID); err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}
	return nil
}

// AppendFindings records the prioritized findings of a completed scan.
func (s *JobStore) AppendFindings(ctx context.Context, scanID string, findings []model.ExplainedFinding) error {
	query := `
	INSERT INTO findings (scan_id, finding_id, name, severity, url, score)
	VALUES (?, ?, ?, ?, ?, ?)
	`

	for _, f := range findings {
		_, err := s.db.ExecContext(ctx, query,
			scanID,
			f.ID,
			f.Name,
			f.Severity.String(),
			f.URL,
			f.Score,
		)
		if err != nil {
			return fmt.Errorf("failed to append finding: %w", err)
		}
	}

	return nil
}

// FindingRecord is one stored finding row, used for history queries
// without loading full job snapshots.
type FindingRecord struct {
	// ID is the unique identifier of the row in the database.
	ID int64

	// ScanID is the scan that produced the finding.
	ScanID string

	// FindingID is the detection template identifier.
	FindingID string

	// Name is the human-readable finding title.
	Name string

	// Severity is the severity label.
	Severity string

	// URL is where the finding matched.
	URL string

	// Score is the priority score assigned at scan time.
	Score float64

	// Timestamp is when the row was recorded.
	Timestamp time.Time
}

// QueryFindings retrieves stored findings with optional filters,
// newest first.
func (s *JobStore) QueryFindings(ctx context.Context, scanID, severity string) ([]FindingRecord, error) {
	query := `
	SELECT id, scan_id, finding_id, name, severity, url, score, timestamp
	FROM findings
	WHERE 1=1
	`
	args := make([]any, 0)

	if scanID != "" {
		query += " AND scan_id = ?"
		args = append(args, scanID)
	}
	if severity != "" {
		query += " AND severity = ?"
		args = append(args, severity)
	}

	query += " ORDER BY timestamp DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	var results []FindingRecord
	for rows.Next() {
		var rec FindingRecord
		var timestamp string

		err := rows.Scan(
			&rec.ID,
			&rec.ScanID,
			&rec.FindingID,
			&rec.Name,
			&rec.Severity,
			&rec.URL,
			&rec.Score,
			&timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finding: %w", err)
		}

		rec.Timestamp = parseTimestamp(timestamp)
		results = append(results, rec)
	}

	return results, rows.Err()
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanJobRow decodes one jobs row into a model.ScanJob.
func scanJobRow(row rowScanner) (*model.ScanJob, error) {
	var job model.ScanJob
	var mode, status, submittedAt string
	var startedAt, completedAt, resultJSON sql.NullString

	err := row.Scan(
		&job.ScanID,
		&job.Target,
		&mode,
		&job.OwnerID,
		&status,
		&submittedAt,
		&startedAt,
		&completedAt,
		&resultJSON,
		&job.Error,
	)
	if err != nil {
		return nil, err
	}

	job.Mode = model.ScanMode(mode)
	job.Status = model.JobStatus(status)
	job.SubmittedAt = parseTimestamp(submittedAt)
	if startedAt.Valid && startedAt.String != "" {
		t := parseTimestamp(startedAt.String)
		job.StartedAt = &t
	}
	if completedAt.Valid && completedAt.String != "" {
		t := parseTimestamp(completedAt.String)
		job.CompletedAt = &t
	}
	if resultJSON.Valid && resultJSON.String != "" {
		var result model.ScanResult
		if err := json.Unmarshal([]byte(resultJSON.String), &result); err != nil {
			return nil, fmt.Errorf("failed to parse result: %w", err)
		}
		job.Result = &result
	}

	return &job, nil
}

// formatOptionalTime renders a nullable timestamp for storage.
func formatOptionalTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339Nano), Valid: true}
}

// timestampFormats contains the timestamp formats that SQLite may return.
// The order matters: more specific formats should come first.
var timestampFormats = []string{
	time.RFC3339Nano,          // our storage format
	time.RFC3339,              // RFC3339 without sub-second precision
	"2006-01-02 15:04:05",     // SQLite default datetime format
	"2006-01-02T15:04:05Z",    // ISO 8601 with Z suffix
	"2006-01-02T15:04:05",     // ISO 8601 without timezone
	"2006-01-02 15:04:05.999", // SQLite with milliseconds
}

// parseTimestamp attempts to parse a timestamp string using multiple formats.
// SQLite may return timestamps in different formats depending on configuration.
// If parsing fails with all formats, returns zero time.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
