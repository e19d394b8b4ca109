// Package history records scan summaries and their vulnerabilities in a
// SQLite database, so later scans of the same target can be listed and
// compared against the previous run.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure Go SQLite driver

	"github.com/cagmero/ARGUS/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	target TEXT NOT NULL,
	scanned_at TEXT NOT NULL,
	duration_seconds REAL NOT NULL,
	files_scanned INTEGER NOT NULL,
	total INTEGER NOT NULL,
	critical INTEGER NOT NULL,
	high INTEGER NOT NULL,
	medium INTEGER NOT NULL,
	low INTEGER NOT NULL,
	tools_used TEXT NOT NULL,
	errors INTEGER NOT NULL,
	exit_code INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS scans_target ON scans (target, id);
CREATE TABLE IF NOT EXISTS vulnerabilities (
	scan_id INTEGER NOT NULL REFERENCES scans(id) ON DELETE CASCADE,
	vuln_key TEXT NOT NULL,
	file TEXT NOT NULL,
	line INTEGER NOT NULL,
	severity TEXT NOT NULL,
	tool TEXT NOT NULL,
	rule_id TEXT NOT NULL,
	message TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS vulnerabilities_scan ON vulnerabilities (scan_id);
`

// Scan is one recorded scan.
type Scan struct {
	ID           int64     `json:"id"`
	Target       string    `json:"target"`
	ScannedAt    time.Time `json:"scanned_at"`
	Duration     float64   `json:"scan_duration"`
	FilesScanned int       `json:"files_scanned"`
	Total        int       `json:"total_vulnerabilities"`
	Critical     int       `json:"critical"`
	High         int       `json:"high"`
	Medium       int       `json:"medium"`
	Low          int       `json:"low"`
	ToolsUsed    []string  `json:"tools_used"`
	Errors       int       `json:"errors"`
	ExitCode     int       `json:"exit_code"`
}

// Store is a scan history database. It is safe for concurrent use.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns ~/.argus/history.db.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".argus", "history.db")
	}
	return filepath.Join(home, ".argus", "history.db")
}

// Open opens or creates the database at path and applies the schema.
// Parent directories are created owner-only; symlinks are rejected.
func Open(path string) (*Store, error) {
	if info, err := os.Lstat(path); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("history database is a symlink (rejected): %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	// one writer at a time; sqlite serializes anyway
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening history database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating history database: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Record stores result under its target and returns the new scan id.
func (s *Store) Record(ctx context.Context, result *types.ScanResult, at time.Time) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("recording scan: %w", err)
	}
	defer tx.Rollback()

	sum := result.Summary
	res, err := tx.ExecContext(ctx, `INSERT INTO scans
		(target, scanned_at, duration_seconds, files_scanned, total, critical, high, medium, low, tools_used, errors, exit_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		result.Target, at.UTC().Format(time.RFC3339Nano), sum.Duration.Seconds(), sum.FilesScanned,
		sum.TotalVulnerabilities, sum.Critical, sum.High, sum.Medium, sum.Low,
		strings.Join(sum.ToolsUsed, ","), len(result.Errors), result.ExitCode())
	if err != nil {
		return 0, fmt.Errorf("recording scan: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("recording scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO vulnerabilities
		(scan_id, vuln_key, file, line, severity, tool, rule_id, message) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("recording vulnerabilities: %w", err)
	}
	defer stmt.Close()
	for _, v := range result.Vulnerabilities {
		if _, err := stmt.ExecContext(ctx, id, v.Key(), v.File, v.Line, v.Severity.String(), v.Tool, v.RuleID, v.Message); err != nil {
			return 0, fmt.Errorf("recording vulnerabilities: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("recording scan: %w", err)
	}
	return id, nil
}

// List returns up to limit scans, newest first. An empty target lists
// every target.
func (s *Store) List(ctx context.Context, target string, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `SELECT id, target, scanned_at, duration_seconds, files_scanned, total, critical, high, medium, low, tools_used, errors, exit_code
		FROM scans`
	args := []any{}
	if target != "" {
		query += ` WHERE target = ?`
		args = append(args, target)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var sc Scan
		var at, tools string
		if err := rows.Scan(&sc.ID, &sc.Target, &at, &sc.Duration, &sc.FilesScanned, &sc.Total,
			&sc.Critical, &sc.High, &sc.Medium, &sc.Low, &tools, &sc.Errors, &sc.ExitCode); err != nil {
			return nil, fmt.Errorf("listing scans: %w", err)
		}
		sc.ScannedAt, err = time.Parse(time.RFC3339Nano, at)
		if err != nil {
			return nil, fmt.Errorf("scan %d has a malformed timestamp %q: %w", sc.ID, at, err)
		}
		if tools != "" {
			sc.ToolsUsed = strings.Split(tools, ",")
		}
		scans = append(scans, sc)
	}
	return scans, rows.Err()
}

// ErrNoPrevious is returned by NewSince when target has no recorded scan.
var ErrNoPrevious = errors.New("no previous scan recorded for target")

// NewSince returns the vulnerabilities of result that were not reported by
// the latest recorded scan of the same target, in result order.
func (s *Store) NewSince(ctx context.Context, result *types.ScanResult) ([]types.Vulnerability, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM scans WHERE target = ? ORDER BY id DESC LIMIT 1`, result.Target).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPrevious
	}
	if err != nil {
		return nil, fmt.Errorf("finding previous scan: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT vuln_key FROM vulnerabilities WHERE scan_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("loading previous vulnerabilities: %w", err)
	}
	defer rows.Close()
	seen := map[string]bool{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("loading previous vulnerabilities: %w", err)
		}
		seen[key] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("loading previous vulnerabilities: %w", err)
	}

	var fresh []types.Vulnerability
	for _, v := range result.Vulnerabilities {
		if !seen[v.Key()] {
			fresh = append(fresh, v)
		}
	}
	return fresh, nil
}

// Prune deletes all but the newest keep scans of every target.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM scans s WHERE
		(SELECT COUNT(*) FROM scans n WHERE n.target = s.target AND n.id > s.id) >= ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM vulnerabilities WHERE scan_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM scans WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning history: %w", err)
	}
	return n, tx.Commit()
}
