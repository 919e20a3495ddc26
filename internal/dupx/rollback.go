package dupx

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"slices"
	"time"
)

// RollbackFilter selects the ledger entries a rollback run reverts.
// Zero values match everything.
type RollbackFilter struct {
	Types  []string // operation kinds (delete, softlink, hardlink) or action names
	After  time.Time
	Before time.Time
}

// Match reports whether e passes the filter. Both time bounds are inclusive.
func (f RollbackFilter) Match(e RollbackEntry) bool {
	if len(f.Types) > 0 && !slices.ContainsFunc(f.Types, func(t string) bool {
		return t == string(e.Kind) || t == string(e.Action)
	}) {
		return false
	}
	if !f.After.IsZero() && e.Timestamp.Before(f.After) {
		return false
	}
	if !f.Before.IsZero() && e.Timestamp.After(f.Before) {
		return false
	}
	return true
}

var timeBoundLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimeBound parses a --after or --before value. Values without a zone
// are taken as UTC.
func ParseTimeBound(s string) (time.Time, error) {
	for _, layout := range timeBoundLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q: want RFC 3339 or YYYY-MM-DD[THH:MM:SS]", s)
}

// RollbackRunner reverts ledger entries, newest first.
type RollbackRunner struct {
	fsops    FileOps
	restorer Restorer
	ledger   Ledger
	logger   Logger
	clock    Clock
	ids      IDGenerator
	dryRun   bool
}

// NewRollbackRunner creates a RollbackRunner reading from and appending
// revert markers to ledger.
func NewRollbackRunner(fsops FileOps, restorer Restorer, ledger Ledger, logger Logger, clock Clock, ids IDGenerator, dryRun bool) *RollbackRunner {
	return &RollbackRunner{
		fsops:    fsops,
		restorer: restorer,
		ledger:   ledger,
		logger:   logger,
		clock:    clock,
		ids:      ids,
		dryRun:   dryRun,
	}
}

// Run reverts every entry matching filter in reverse ledger order.
// A failing entry is counted and reported; the remaining entries still run.
// A non-nil error means the ledger could not be read or the run was interrupted.
func (r *RollbackRunner) Run(ctx context.Context, filter RollbackFilter) (RollbackSummary, error) {
	sum := RollbackSummary{DryRun: r.dryRun}

	entries, err := r.ledger.Entries()
	if err != nil {
		return sum, fmt.Errorf("reading ledger: %w", err)
	}

	reverted := make(map[string]bool)
	for _, e := range entries {
		if e.IsMarker() {
			reverted[e.Reverts] = true
		}
	}

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.IsMarker() || !filter.Match(e) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return sum, fmt.Errorf("rollback interrupted: %w", err)
		}
		sum.Total++

		switch {
		case e.DryRun:
			r.logger.Info("skipping dry-run preview entry", "operation", e.OperationID, "path", e.TargetPath)
			sum.Skipped++
			continue
		case reverted[e.OperationID]:
			r.logger.Info("already reverted", "operation", e.OperationID, "path", e.TargetPath)
			sum.Skipped++
			continue
		}

		if err := r.revert(e); err != nil {
			r.logger.Error("rollback failed", "operation", e.OperationID, "path", e.TargetPath, "error", err.Error())
			sum.Failed++
			continue
		}
		sum.Restored++

		if r.dryRun {
			r.logger.Info("dry run: would restore", "operation", e.OperationID, "op", e.Kind, "path", e.TargetPath, "backup", e.RestoreSource)
			continue
		}
		r.logger.Success("restored", "operation", e.OperationID, "op", e.Kind, "path", e.TargetPath, "backup", e.RestoreSource)

		marker := RollbackEntry{
			OperationID:   r.ids.New(),
			SessionID:     e.SessionID,
			Row:           e.Row,
			Action:        e.Action,
			Kind:          e.Kind,
			TargetPath:    e.TargetPath,
			RestoreSource: e.RestoreSource,
			Timestamp:     r.clock.Now().UTC(),
			Reverts:       e.OperationID,
		}
		if err := r.ledger.Append(marker); err != nil {
			r.logger.Warn("recording revert marker", "operation", e.OperationID, "error", err.Error())
		}
	}

	return sum, nil
}

// revert restores the backup of a single entry.
func (r *RollbackRunner) revert(e RollbackEntry) error {
	if e.RestoreSource == "" {
		return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: "no backup recorded"}
	}
	if _, err := r.fsops.Lstat(e.RestoreSource); err != nil {
		return &RollbackError{OperationID: e.OperationID, Path: e.RestoreSource, Reason: "backup missing", Err: err}
	}
	if e.BackupChecksum != "" {
		ok, err := r.restorer.Matches(e.RestoreSource, e.BackupChecksum)
		if err != nil {
			return &RollbackError{OperationID: e.OperationID, Path: e.RestoreSource, Reason: "reading backup", Err: err}
		}
		if !ok {
			return &RollbackError{OperationID: e.OperationID, Path: e.RestoreSource, Reason: "backup checksum mismatch"}
		}
	}

	if err := r.checkTarget(e); err != nil {
		return err
	}
	if r.dryRun {
		return nil
	}

	if err := r.fsops.MkdirAll(filepath.Dir(e.TargetPath), 0755); err != nil {
		return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: "creating parent directory", Err: err}
	}
	if err := r.restorer.Restore(e.backupEntry(), e.TargetPath); err != nil {
		return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: "restoring backup", Err: err}
	}
	return nil
}

// checkTarget refuses to overwrite anything other than what the executor left behind.
func (r *RollbackRunner) checkTarget(e RollbackEntry) error {
	info, err := r.fsops.Lstat(e.TargetPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: "inspecting target", Err: err}
	}

	switch e.Kind {
	case KindDelete:
		return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: "target exists, refusing to overwrite"}

	case KindSoftlink:
		if info.Mode()&fs.ModeSymlink == 0 {
			return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: "target is no longer a symbolic link"}
		}
		dest, err := r.fsops.Readlink(e.TargetPath)
		if err != nil {
			return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: "reading link", Err: err}
		}
		if dest != e.LinkTarget {
			return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: "symbolic link now points at " + dest}
		}
		return nil

	case KindHardlink:
		if !info.Mode().IsRegular() {
			return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: "target is not a regular file"}
		}
		if same, err := r.fsops.SameFile(e.TargetPath, e.LinkTarget); err == nil && same {
			return nil
		}
		if e.BackupChecksum != "" {
			if ok, err := r.restorer.Matches(e.TargetPath, e.BackupChecksum); err == nil && ok {
				return nil
			}
		}
		return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: "target changed since it was linked"}
	}

	return &RollbackError{OperationID: e.OperationID, Path: e.TargetPath, Reason: fmt.Sprintf("unknown operation kind %q", e.Kind)}
}
