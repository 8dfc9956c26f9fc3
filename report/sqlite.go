package report

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oriumgames/sieve"
)

// SQLiteIndex stores the findings of successive scans so that runs can be
// compared. It is safe for concurrent use.
type SQLiteIndex struct {
	db *sql.DB
}

// OpenSQLite opens, and creates if needed, the index database at path.
func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("%s: %w", p, err)
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			recorded_at TEXT NOT NULL,
			regions INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			mutated INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS findings (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			file TEXT NOT NULL,
			type TEXT NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			PRIMARY KEY (run_id, file, x, y, z)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_findings_type ON findings(run_id, type);`,
		`CREATE TABLE IF NOT EXISTS failed_files (
			run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
			file TEXT NOT NULL,
			PRIMARY KEY (run_id, file)
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}

// Record stores res under runID, replacing an earlier run with the same id.
func (s *SQLiteIndex) Record(ctx context.Context, runID string, res *sieve.Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, runID); err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO runs(id, recorded_at, regions, chunks, mutated) VALUES(?,?,?,?,?)`,
		runID, time.Now().UTC().Format(time.RFC3339), res.Regions, res.Chunks, res.Mutated,
	); err != nil {
		return fmt.Errorf("insert run %s: %w", runID, err)
	}

	insertFinding, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO findings(run_id, file, type, x, y, z) VALUES(?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer insertFinding.Close()
	for _, o := range res.Sorted() {
		if _, err := insertFinding.ExecContext(ctx, runID, o.File, o.Type, o.Pos[0], o.Pos[1], o.Pos[2]); err != nil {
			return fmt.Errorf("insert finding: %w", err)
		}
	}

	insertFailed, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO failed_files(run_id, file) VALUES(?,?)`)
	if err != nil {
		return err
	}
	defer insertFailed.Close()
	for _, f := range res.Failed {
		if _, err := insertFailed.ExecContext(ctx, runID, f); err != nil {
			return fmt.Errorf("insert failed file: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run %s: %w", runID, err)
	}
	return nil
}

// TypeCounts returns the number of findings of each block type in a run.
func (s *SQLiteIndex) TypeCounts(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT type, COUNT(*) FROM findings WHERE run_id = ? GROUP BY type`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// FailedFiles returns the files recorded as failed in a run, sorted.
func (s *SQLiteIndex) FailedFiles(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT file FROM failed_files WHERE run_id = ? ORDER BY file`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// Resolved counts, per block type, the findings of run before that no longer
// appear in run after.
func (s *SQLiteIndex) Resolved(ctx context.Context, before, after string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.type, COUNT(*) FROM findings b
		LEFT JOIN findings a ON a.run_id = ? AND a.x = b.x AND a.y = b.y AND a.z = b.z AND a.type = b.type
		WHERE b.run_id = ? AND a.run_id IS NULL
		GROUP BY b.type`, after, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}
