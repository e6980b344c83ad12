package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("manifest: record not found")

// SetupSchema initializes the manifest tables in the provided database.
// It is idempotent and safe to call on an already-initialized database.
func SetupSchema(db *sql.DB) error {

	const (
		schemaFiles = `
CREATE TABLE IF NOT EXISTS passthrough_files (
    output_path TEXT PRIMARY KEY,
    source_path TEXT NOT NULL,
    size INTEGER NOT NULL,
    mod_time_ns INTEGER NOT NULL,
    copied_at INTEGER NOT NULL
);
`
		schemaRuns = `
CREATE TABLE IF NOT EXISTS build_runs (
    run_id INTEGER PRIMARY KEY,
    started_at INTEGER NOT NULL,
    finished_at INTEGER NOT NULL,
    pages INTEGER NOT NULL DEFAULT 0,
    copied INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    bytes INTEGER NOT NULL DEFAULT 0
);
`
	)

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}

	// A no-op once Commit has succeeded.
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.Exec(schemaFiles); err != nil {
		return fmt.Errorf("could not create files schema: %w", err)
	}

	if _, err = tx.Exec(schemaRuns); err != nil {
		return fmt.Errorf("could not create runs schema: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("could not commit transaction: %w", err)
	}

	return nil
}

// FileRecord is the stored state of one copied passthrough file.
type FileRecord struct {
	OutputPath string
	SourcePath string
	Size       int64
	ModTime    time.Time
	CopiedAt   time.Time
}

// Matches reports whether the record describes a source with the given size
// and modification time.
func (r FileRecord) Matches(size int64, modTime time.Time) bool {
	return r.Size == size && r.ModTime.Equal(modTime)
}

// Run summarizes a single build.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt time.Time
	Pages      int
	Copied     int
	Skipped    int
	Bytes      int64
}

// Duration returns how long the run took.
func (r Run) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Store provides access to the manifest tables through prepared statements.
type Store struct {
	db              *sql.DB
	stmtLookup      *sql.Stmt
	stmtRecord      *sql.Stmt
	stmtForget      *sql.Stmt
	stmtInsertRun   *sql.Stmt
	stmtLastRun     *sql.Stmt
	stmtFileTotals  *sql.Stmt
	stmtRunCount    *sql.Stmt
	stmtResetFiles  *sql.Stmt
	stmtResetRuns   *sql.Stmt
	stmtOutputPaths *sql.Stmt
}

// NewStore creates a Store and pre-compiles all SQL statements, returning an
// error if any preparation fails. SetupSchema must have been called first.
func NewStore(db *sql.DB) (*Store, error) {
	s := &Store{db: db}

	statements := []struct {
		dst   **sql.Stmt
		query string
	}{
		{&s.stmtLookup, `SELECT source_path, size, mod_time_ns, copied_at FROM passthrough_files WHERE output_path = ?;`},
		{&s.stmtRecord, `
INSERT INTO passthrough_files (output_path, source_path, size, mod_time_ns, copied_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(output_path) DO UPDATE SET
    source_path = excluded.source_path,
    size = excluded.size,
    mod_time_ns = excluded.mod_time_ns,
    copied_at = excluded.copied_at;`},
		{&s.stmtForget, `DELETE FROM passthrough_files WHERE output_path = ?;`},
		{&s.stmtInsertRun, `INSERT INTO build_runs (started_at, finished_at, pages, copied, skipped, bytes) VALUES (?, ?, ?, ?, ?, ?);`},
		{&s.stmtLastRun, `SELECT run_id, started_at, finished_at, pages, copied, skipped, bytes FROM build_runs ORDER BY run_id DESC LIMIT 1;`},
		{&s.stmtFileTotals, `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM passthrough_files;`},
		{&s.stmtRunCount, `SELECT COUNT(*) FROM build_runs;`},
		{&s.stmtResetFiles, `DELETE FROM passthrough_files;`},
		{&s.stmtResetRuns, `DELETE FROM build_runs;`},
		{&s.stmtOutputPaths, `SELECT output_path FROM passthrough_files ORDER BY output_path;`},
	}

	for _, st := range statements {
		stmt, err := db.Prepare(st.query)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to prepare statement: %w", err)
		}
		*st.dst = stmt
	}

	return s, nil
}

// Close releases all prepared statements. It does not close the database.
func (s *Store) Close() {
	for _, stmt := range []*sql.Stmt{
		s.stmtLookup, s.stmtRecord, s.stmtForget, s.stmtInsertRun, s.stmtLastRun,
		s.stmtFileTotals, s.stmtRunCount, s.stmtResetFiles, s.stmtResetRuns, s.stmtOutputPaths,
	} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}
}

// Lookup returns the record for outputPath. The boolean is false when no
// record exists.
func (s *Store) Lookup(ctx context.Context, outputPath string) (FileRecord, bool, error) {
	var (
		rec              FileRecord
		modNs, copiedSec int64
	)
	err := s.stmtLookup.QueryRowContext(ctx, outputPath).Scan(&rec.SourcePath, &rec.Size, &modNs, &copiedSec)
	if errors.Is(err, sql.ErrNoRows) {
		return FileRecord{}, false, nil
	}
	if err != nil {
		return FileRecord{}, false, err
	}
	rec.OutputPath = outputPath
	rec.ModTime = time.Unix(0, modNs)
	rec.CopiedAt = time.Unix(copiedSec, 0)
	return rec, true, nil
}

// Record inserts or replaces the record for rec.OutputPath.
// A zero CopiedAt is stored as the current time.
func (s *Store) Record(ctx context.Context, rec FileRecord) error {
	if rec.CopiedAt.IsZero() {
		rec.CopiedAt = time.Now()
	}
	_, err := s.stmtRecord.ExecContext(ctx, rec.OutputPath, rec.SourcePath, rec.Size, rec.ModTime.UnixNano(), rec.CopiedAt.Unix())
	return err
}

// Forget removes the record for outputPath. It returns ErrNotFound if there was none.
func (s *Store) Forget(ctx context.Context, outputPath string) error {
	res, err := s.stmtForget.ExecContext(ctx, outputPath)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// OutputPaths returns every recorded output path in lexical order.
func (s *Store) OutputPaths(ctx context.Context) ([]string, error) {
	rows, err := s.stmtOutputPaths.QueryContext(ctx)
	if err != nil {
		return nil, err
	}
	defer func(rows *sql.Rows) {
		_ = rows.Close()
	}(rows)

	var paths []string
	for rows.Next() {
		var p string
		if err = rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}

// Reset deletes every file record and run in a single transaction.
func (s *Store) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer func(tx *sql.Tx) {
		_ = tx.Rollback()
	}(tx)

	if _, err = tx.StmtContext(ctx, s.stmtResetFiles).ExecContext(ctx); err != nil {
		return fmt.Errorf("could not reset files: %w", err)
	}
	if _, err = tx.StmtContext(ctx, s.stmtResetRuns).ExecContext(ctx); err != nil {
		return fmt.Errorf("could not reset runs: %w", err)
	}
	return tx.Commit()
}

// RecordRun stores a build run and returns it with its assigned ID.
func (s *Store) RecordRun(ctx context.Context, run Run) (Run, error) {
	res, err := s.stmtInsertRun.ExecContext(ctx,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
		run.Pages, run.Copied, run.Skipped, run.Bytes)
	if err != nil {
		return Run{}, err
	}
	run.ID, err = res.LastInsertId()
	if err != nil {
		return Run{}, err
	}
	return run, nil
}

// LastRun returns the most recent build run, or ErrNotFound if none was recorded.
func (s *Store) LastRun(ctx context.Context) (Run, error) {
	var (
		run                Run
		startNs, finishNs int64
	)
	err := s.stmtLastRun.QueryRowContext(ctx).Scan(&run.ID, &startNs, &finishNs, &run.Pages, &run.Copied, &run.Skipped, &run.Bytes)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, startNs)
	run.FinishedAt = time.Unix(0, finishNs)
	return run, nil
}
