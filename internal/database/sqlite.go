package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dupx-go/internal/database/migrations"
	"dupx-go/internal/dupx"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements dupx.RunHistory using SQLite.
type SQLiteDatabase struct {
	db   *sql.DB
	path string
}

// NewSQLiteDatabase opens the run history at path and applies any pending
// migrations. path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating run history: %w", err)
	}

	return &SQLiteDatabase{
		db:   db,
		path: path,
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{db: db}
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Run operations

func (s *SQLiteDatabase) CreateRun(run *dupx.RunRecord) (int64, error) {
	if run.Status == "" {
		run.Status = dupx.RunStatusRunning
	}
	res, err := s.db.ExecContext(context.Background(), `
		INSERT INTO runs (command, started_at, dry_run, input_path, session_dir, ledger_path, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.Command, run.StartedAt.UTC(), run.DryRun, run.InputPath, run.SessionDir, run.LedgerPath, run.Status,
	)
	if err != nil {
		return 0, fmt.Errorf("creating run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading run id: %w", err)
	}
	run.ID = id
	return id, nil
}

func (s *SQLiteDatabase) FinishRun(run *dupx.RunRecord) error {
	if run.ID == 0 {
		return fmt.Errorf("finishing run: run has not been created")
	}
	if run.FinishedAt == nil {
		now := time.Now().UTC()
		run.FinishedAt = &now
	}
	res, err := s.db.ExecContext(context.Background(), `
		UPDATE runs
		SET finished_at = ?, status = ?, session_dir = ?, ledger_path = ?,
		    total = ?, processed = ?, skipped = ?, errored = ?
		WHERE id = ?`,
		run.FinishedAt.UTC(), run.Status, run.SessionDir, run.LedgerPath,
		run.Total, run.Processed, run.Skipped, run.Errored, run.ID,
	)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", run.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", run.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run %d: no such run", run.ID)
	}
	return nil
}

func (s *SQLiteDatabase) ListRuns(limit int) ([]*dupx.RunRecord, error) {
	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}
	rows, err := s.db.QueryContext(context.Background(), `
		SELECT id, command, started_at, finished_at, dry_run, input_path, session_dir, ledger_path,
		       status, total, processed, skipped, errored
		FROM runs
		ORDER BY started_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*dupx.RunRecord
	for rows.Next() {
		var (
			r        dupx.RunRecord
			finished sql.NullTime
		)
		if err := rows.Scan(&r.ID, &r.Command, &r.StartedAt, &finished, &r.DryRun, &r.InputPath,
			&r.SessionDir, &r.LedgerPath, &r.Status, &r.Total, &r.Processed, &r.Skipped, &r.Errored); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			r.FinishedAt = &t
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Path returns the database file path, or "" for a wrapped connection.
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteDatabase implements dupx.RunHistory interface
var _ dupx.RunHistory = (*SQLiteDatabase)(nil)
