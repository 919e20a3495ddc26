package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dupx-go/internal/backup"
	"dupx-go/internal/config"
	"dupx-go/internal/database"
	"dupx-go/internal/decision"
	"dupx-go/internal/dupx"
	"dupx-go/internal/fs"
	"dupx-go/internal/ledger"
)

// Options controls how a DupxApp reports progress.
type Options struct {
	Verbose bool
	Console io.Writer // defaults to os.Stderr
}

// ExecuteResult describes a finished (or aborted) execute run.
type ExecuteResult struct {
	Summary    dupx.RunSummary
	SessionDir string
	LedgerPath string
	Preview    []dupx.RollbackEntry // dry runs only
}

// RollbackResult describes a finished (or aborted) rollback run.
type RollbackResult struct {
	Summary    dupx.RollbackSummary
	LedgerPath string
}

// DupxApp is the application layer between the CLI and the executor.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and manages the history lifecycle on Close.
type DupxApp struct {
	cfg     *config.Config
	db      dupx.RunHistory
	fsops   *fs.OSFileOps
	logger  *slogAdapter
	logFile *os.File
	clock   dupx.Clock
	ids     dupx.IDGenerator
	session string
	started time.Time
	op      *RunOperation
}

// NewDupxApp creates a fully wired DupxApp from the given config.
// command identifies the CLI command being run (e.g. "execute", "rollback").
// The caller must call Close when done.
func NewDupxApp(cfg *config.Config, command string, opts Options) (*DupxApp, error) {
	db, err := database.NewDatabaseFromConfig(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening run history: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	clock := dupx.RealClock{}
	started := clock.Now()
	session := backup.SessionName(started)

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}
	logger, logFile, err := newLogger(cfg.LogDir, session, console, opts.Verbose)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}

	return &DupxApp{
		cfg:     cfg,
		db:      db,
		fsops:   fs.NewOSFileOps(),
		logger:  &slogAdapter{l: logger},
		logFile: logFile,
		clock:   clock,
		ids:     dupx.UUIDGenerator{},
		session: session,
		started: started,
		op:      NewRunOperation(command, "", false, started),
	}, nil
}

// Session returns the session id of this run.
func (a *DupxApp) Session() string {
	return a.session
}

// persistOperation saves the run to the history, giving it an auto-increment ID.
// This should only be called by execute and rollback.
func (a *DupxApp) persistOperation(inputPath string, dryRun bool) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Record.InputPath = inputPath
	a.op.Record.DryRun = dryRun
	if _, err := a.db.CreateRun(a.op.Record); err != nil {
		return fmt.Errorf("recording run: %w", err)
	}
	return nil
}

// Execute applies the decision table at rawPath. The result is non-nil even
// when an error is returned, so a summary can always be printed.
func (a *DupxApp) Execute(ctx context.Context, rawPath string, dryRun bool) (*ExecuteResult, error) {
	res := &ExecuteResult{Summary: dupx.RunSummary{DryRun: dryRun}}

	path, err := filepath.Abs(rawPath)
	if err != nil {
		return res, fmt.Errorf("resolving path: %w", err)
	}
	if err := a.persistOperation(path, dryRun); err != nil {
		return res, err
	}

	res.Summary, err = a.execute(ctx, path, dryRun, res)
	a.op.CompleteExecute(res.Summary, err)
	a.op.Record.SessionDir = res.SessionDir
	a.op.Record.LedgerPath = res.LedgerPath
	return res, err
}

func (a *DupxApp) execute(ctx context.Context, path string, dryRun bool, res *ExecuteResult) (dupx.RunSummary, error) {
	loader, err := decision.NewLoader(a.cfg.DecisionTable.Delimiter)
	if err != nil {
		return res.Summary, fmt.Errorf("configuring decision table: %w", err)
	}
	records, err := loader.LoadFile(path)
	if err != nil {
		return res.Summary, err
	}

	if !dryRun {
		if err := dupx.CheckPrerequisites(a.fsops, a.cfg.BackupDir); err != nil {
			return res.Summary, err
		}
	}

	protected, err := a.protectMatcher()
	if err != nil {
		return res.Summary, err
	}

	ledgerInUse := func(name string) bool {
		_, err := a.fsops.Lstat(ledger.PathFor(a.cfg.LedgerDir, name))
		return err == nil
	}
	sess, err := backup.NewSession(a.fsops, a.cfg.BackupDir, a.started, a.clock, dryRun, ledgerInUse)
	if err != nil {
		return res.Summary, err
	}
	a.session = sess.Name()
	res.SessionDir = sess.SessionDir()

	res.LedgerPath = ledger.PathFor(a.cfg.LedgerDir, a.session)
	l, err := ledger.NewLedger(res.LedgerPath, dryRun)
	if err != nil {
		return res.Summary, fmt.Errorf("opening rollback ledger: %w", err)
	}
	defer l.Close()

	a.logger.Info("starting run", "session", a.session, "input", path, "dry_run", dryRun, "backups", res.SessionDir, "ledger", res.LedgerPath)

	exec := dupx.NewExecutor(a.fsops, dupx.NewValidator(a.fsops, protected), sess, l, a.logger, a.clock, a.ids, dupx.ExecuteOptions{
		SessionID: a.session,
		DryRun:    dryRun,
	})
	sum, runErr := exec.Execute(ctx, records)

	if dryRun {
		if res.Preview, err = l.Entries(); err != nil {
			a.logger.Warn("reading dry-run preview", "error", err.Error())
		}
	}

	if runErr != nil {
		a.logger.Error("run aborted", "error", runErr.Error())
	}
	a.logger.Info("run finished", "total", sum.Total, "processed", sum.Processed, "skipped", sum.Skipped, "errored", sum.Errored)
	return sum, runErr
}

// protectMatcher combines the configured protect patterns and protect file.
func (a *DupxApp) protectMatcher() (*fs.ProtectMatcher, error) {
	patterns := append([]string{}, a.cfg.Filesystem.Protect...)
	if a.cfg.Filesystem.ProtectFile != "" {
		extra, err := fs.ParseProtectFile(a.cfg.Filesystem.ProtectFile)
		if err != nil {
			return nil, err
		}
		patterns = append(patterns, extra...)
	}
	return fs.NewProtectMatcher(patterns), nil
}

// Rollback reverts the entries of the ledger at rawPath that match filter.
// The result is non-nil even when an error is returned.
func (a *DupxApp) Rollback(ctx context.Context, rawPath string, filter dupx.RollbackFilter, dryRun bool) (*RollbackResult, error) {
	res := &RollbackResult{Summary: dupx.RollbackSummary{DryRun: dryRun}}

	path, err := filepath.Abs(rawPath)
	if err != nil {
		return res, fmt.Errorf("resolving path: %w", err)
	}
	res.LedgerPath = path
	if err := a.persistOperation(path, dryRun); err != nil {
		return res, err
	}
	a.op.Record.LedgerPath = path

	res.Summary, err = a.rollback(ctx, path, filter, dryRun)
	a.op.CompleteRollback(res.Summary, err)
	return res, err
}

func (a *DupxApp) rollback(ctx context.Context, path string, filter dupx.RollbackFilter, dryRun bool) (dupx.RollbackSummary, error) {
	empty := dupx.RollbackSummary{DryRun: dryRun}

	l, err := openLedgerForRollback(path, dryRun)
	if err != nil {
		return empty, err
	}
	defer l.Close()

	a.logger.Info("starting rollback", "ledger", path, "dry_run", dryRun, "types", filter.Types)

	runner := dupx.NewRollbackRunner(a.fsops, backup.NewRestorer(a.fsops), l, a.logger, a.clock, a.ids, dryRun)
	sum, err := runner.Run(ctx, filter)
	if err != nil {
		a.logger.Error("rollback aborted", "error", err.Error())
	}
	a.logger.Info("rollback finished", "total", sum.Total, "restored", sum.Restored, "skipped", sum.Skipped, "failed", sum.Failed)
	return sum, err
}

// openLedgerForRollback opens an existing ledger. A dry run reads it into
// memory so the file is left untouched.
func openLedgerForRollback(path string, dryRun bool) (dupx.Ledger, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("rollback ledger: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("rollback ledger %s is a directory", path)
	}

	if !dryRun {
		l, err := ledger.OpenFileLedger(path)
		if err != nil {
			return nil, fmt.Errorf("opening rollback ledger: %w", err)
		}
		return l, nil
	}

	entries, err := ledger.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rollback ledger: %w", err)
	}
	l := ledger.NewMemoryLedger(path)
	for _, e := range entries {
		l.Append(e)
	}
	return l, nil
}

// History returns the most recent runs.
func (a *DupxApp) History(limit int) ([]*dupx.RunRecord, error) {
	return a.db.ListRuns(limit)
}

// Close finalizes the run record and closes all resources.
func (a *DupxApp) Close() error {
	var firstErr error

	if a.op.Persisted() {
		if a.op.Record.Status == dupx.RunStatusRunning {
			a.op.Fail()
		}
		finished := a.clock.Now().UTC()
		a.op.Record.FinishedAt = &finished
		if err := a.db.FinishRun(a.op.Record); err != nil {
			firstErr = fmt.Errorf("finishing run record: %w", err)
		}
	}

	if err := a.db.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing database: %w", err)
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return firstErr
}
